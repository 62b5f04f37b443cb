package pipeline

import (
	"bytes"
	"context"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/storage"
)

// EvaluationReport is the terminal artifact of a run.
type EvaluationReport struct {
	Family string `json:"family"`
	Report
	NSamples  int   `json:"n_samples"`
	TestRows  []int `json:"test_rows"`
	TrainRows int   `json:"train_rows"`
}

// Evaluator scores the final model once on the test split.
type Evaluator struct {
	Store  storage.Store
	Logger log.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(store storage.Store) *Evaluator {
	return &Evaluator{Store: store, Logger: log.GetLoggerWithName("pipeline.evaluator")}
}

// Evaluate predicts on test and writes evaluation/report. Regression runs
// also get a predicted-vs-actual scatter plot.
func (e *Evaluator) Evaluate(ctx context.Context, fm *FinalModel, test *FeatureSet) (*EvaluationReport, error) {
	const op = "Evaluator.Evaluate"
	if fm == nil || fm.Model == nil {
		return nil, errors.NewConfigurationError(op, "no final model")
	}
	if err := test.check(op); err != nil {
		return nil, err
	}

	pred, err := predictVector(fm.Model, test.X)
	if err != nil {
		return nil, errors.NewTrainingError(op, "final model failed to predict", err)
	}
	report, err := scoreReport(fm.Task, test.Y, pred)
	if err != nil {
		return nil, errors.NewTrainingError(op, "test predictions could not be scored", err)
	}

	out := &EvaluationReport{
		Family:    fm.Family,
		Report:    report,
		NSamples:  test.Len(),
		TestRows:  append([]int(nil), test.RowIDs...),
		TrainRows: fm.NSamples,
	}
	if err := storage.PutJSON(ctx, e.Store, KeyEvalReport, out); err != nil {
		return nil, err
	}
	if report.Regression != nil {
		png, err := scatterPNG(test.Y, pred)
		if err != nil {
			e.Logger.Warn("could not render evaluation plot", err, log.ArtifactKey, KeyEvalPlot)
		} else if err := e.Store.Put(ctx, KeyEvalPlot, png); err != nil {
			return nil, err
		}
	}
	e.Logger.Info("evaluation complete",
		log.FamilyKey, fm.Family,
		log.MetricKey, report.Metric,
		log.ScoreKey, report.Score,
		log.SamplesKey, out.NSamples,
	)
	return out, nil
}

// scatterPNG plots predictions against actual values with the y = x line.
func scatterPNG(actual, pred []float64) ([]byte, error) {
	pts := make(plotter.XYs, len(actual))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range actual {
		pts[i].X, pts[i].Y = actual[i], pred[i]
		lo = math.Min(lo, math.Min(actual[i], pred[i]))
		hi = math.Max(hi, math.Max(actual[i], pred[i]))
	}

	p := plot.New()
	p.Title.Text = "Predicted vs actual"
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	diag, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, err
	}
	diag.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(scatter, diag, plotter.NewGrid())

	w, err := p.WriterTo(4*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
