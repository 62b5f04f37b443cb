package pipeline

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/metrics"
	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// Report is the scored outcome of predictions against known labels. Score
// always follows "larger is better".
type Report struct {
	Metric         string                        `json:"metric"`
	Score          float64                       `json:"score"`
	Regression     *metrics.RegressionReport     `json:"regression,omitempty"`
	Classification *metrics.ClassificationReport `json:"classification,omitempty"`
}

// MetricName returns the selection metric of task.
func MetricName(task string) string {
	if task == config.TaskClassification {
		return metrics.MacroF1Name
	}
	return metrics.NegMSEName
}

// scoreReport computes the task's metric and diagnostics.
func scoreReport(task string, yTrue, yPred []float64) (Report, error) {
	r := Report{Metric: MetricName(task)}
	if task == config.TaskClassification {
		cr, err := metrics.NewClassificationReport(yTrue, roundLabels(yPred))
		if err != nil {
			return Report{}, err
		}
		r.Classification = &cr
		r.Score = cr.Score()
	} else {
		rr, err := metrics.NewRegressionReport(yTrue, yPred)
		if err != nil {
			return Report{}, err
		}
		r.Regression = &rr
		r.Score = rr.Score()
	}
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return Report{}, errors.Newf("%s is not finite: %v", r.Metric, r.Score)
	}
	return r, nil
}

// predictVector runs est on X and flattens the n×1 result.
func predictVector(est model.Predictor, X mat.Matrix) ([]float64, error) {
	pred, err := est.Predict(X)
	if err != nil {
		return nil, err
	}
	r, c := pred.Dims()
	if c != 1 {
		return nil, errors.NewDimensionError("predict", 1, c, 1)
	}
	return mat.Col(make([]float64, r), 0, pred), nil
}

func roundLabels(pred []float64) []float64 {
	out := make([]float64, len(pred))
	for i, v := range pred {
		out[i] = math.Round(v)
	}
	return out
}

func selectRows(X *mat.Dense, rows []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, X.RawRowView(r))
	}
	return out
}

func selectValues(y []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = y[r]
	}
	return out
}

func column(y []float64) *mat.Dense {
	return mat.NewDense(len(y), 1, append([]float64(nil), y...))
}
