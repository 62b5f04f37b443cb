package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/sklearn/model_selection"
	"github.com/YuminosukeSato/salescv/storage"
)

// Trial is one hyperparameter combination of one family.
type Trial struct {
	Index  int          `json:"index"`
	Family string       `json:"family"`
	Params model.Params `json:"params"`
}

// TrialResult records the outcome of a trial in the fold's history.
type TrialResult struct {
	Trial
	Score      *float64 `json:"score,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// Trials expands the search space for one fold. Families are visited in
// sorted order; random sampling is seeded with seed+foldID. MaxTrials > 0
// caps the total.
func Trials(search config.SearchConfig, foldID int, seed uint64) ([]Trial, error) {
	names := make([]string, 0, len(search.Families))
	for name := range search.Families {
		names = append(names, name)
	}
	sort.Strings(names)

	var trials []Trial
	for _, name := range names {
		var combos []model.Params
		switch search.Strategy {
		case config.StrategyGrid:
			g, err := model_selection.NewParameterGrid(search.Families[name])
			if err != nil {
				return nil, err
			}
			combos = g.All()
		case config.StrategyRandom:
			s, err := model_selection.NewParameterSampler(search.Families[name], search.NIter, seed+uint64(foldID))
			if err != nil {
				return nil, err
			}
			combos = s.Sample()
		default:
			return nil, errors.NewConfigurationErrorf("pipeline.Trials", "unknown search strategy %q", search.Strategy)
		}
		for _, p := range combos {
			trials = append(trials, Trial{Index: len(trials), Family: name, Params: p})
		}
	}
	if search.MaxTrials > 0 && len(trials) > search.MaxTrials {
		trials = trials[:search.MaxTrials]
	}
	return trials, nil
}

// Candidate is the best trial of a fold.
type Candidate struct {
	FoldID int
	Family string
	Params model.Params
	Model  model.Estimator
	Report Report
	Trials []TrialResult
}

// FoldMetrics is the JSON document stored at cross_val/fold_<id>/metrics.
type FoldMetrics struct {
	FoldID int    `json:"fold_id"`
	RunID  string `json:"run_id,omitempty"`
	Family string `json:"family"`
	Report
	TrainRows      int           `json:"train_rows"`
	ValidationRows int           `json:"validation_rows"`
	Trials         []TrialResult `json:"trials"`
}

// CandidateTrainer runs the hyperparameter search of one fold and persists
// the winning candidate.
type CandidateTrainer struct {
	Store  storage.Store
	Task   string
	Search config.SearchConfig
	Seed   uint64
	// RunID is recorded in every metrics artifact so that selection can
	// tell this run's folds from leftovers of an earlier one.
	RunID  string
	Logger log.Logger
}

// NewCandidateTrainer creates a trainer from the run configuration.
func NewCandidateTrainer(store storage.Store, cfg config.Config) *CandidateTrainer {
	return &CandidateTrainer{
		Store:  store,
		Task:   cfg.Data.Task,
		Search: cfg.Search,
		Seed:   cfg.Run.Seed,
		Logger: log.GetLoggerWithName("pipeline.trainer"),
	}
}

// TrainFold fits every trial on fold.TrainIndices of X and scores it on
// fold.ValidationIndices. Failed trials are logged and skipped; the fold
// fails only when no trial succeeds. The metrics artifact is written last.
func (t *CandidateTrainer) TrainFold(ctx context.Context, fold model_selection.Fold, X *mat.Dense, y []float64) (*Candidate, error) {
	const op = "CandidateTrainer.TrainFold"
	logger := t.Logger.With(log.FoldKey, fold.ID)

	if err := checkFold(op, fold, X, y); err != nil {
		return nil, err
	}
	trials, err := Trials(t.Search, fold.ID, t.Seed)
	if err != nil {
		return nil, err
	}
	if len(trials) == 0 {
		return nil, errors.NewConfigurationError(op, "search space produced no trials")
	}

	Xtr, ytr := selectRows(X, fold.TrainIndices), selectValues(y, fold.TrainIndices)
	Xva, yva := selectRows(X, fold.ValidationIndices), selectValues(y, fold.ValidationIndices)

	var best *Candidate
	history := make([]TrialResult, 0, len(trials))
	for _, trial := range trials {
		start := time.Now()
		est, params, report, err := t.runTrial(ctx, trial, Xtr, ytr, Xva, yva)
		res := TrialResult{Trial: trial, DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Error = err.Error()
			history = append(history, res)
			logger.Warn("trial failed", err,
				log.TrialKey, trial.Index,
				log.FamilyKey, trial.Family,
				log.HyperParamsKey, trial.Params,
				log.ErrorCodeKey, log.ErrorTrialFailed,
			)
			continue
		}
		score := report.Score
		res.Trial.Params = params
		res.Score = &score
		history = append(history, res)
		logger.Debug("trial scored",
			log.TrialKey, trial.Index,
			log.FamilyKey, trial.Family,
			log.ScoreKey, score,
			log.DurationMsKey, res.DurationMs,
		)
		if best == nil || score > best.Report.Score {
			best = &Candidate{FoldID: fold.ID, Family: trial.Family, Params: params, Model: est, Report: report}
		}
	}
	if best == nil {
		return nil, errors.NewTrainingError(op, fmt.Sprintf("fold %d: all %d trials failed", fold.ID, len(trials)), nil)
	}
	best.Trials = history

	if err := t.persist(ctx, best, len(fold.TrainIndices), len(fold.ValidationIndices)); err != nil {
		return nil, err
	}
	logger.Info("fold complete",
		log.FamilyKey, best.Family,
		log.MetricKey, best.Report.Metric,
		log.ScoreKey, best.Report.Score,
		log.HyperParamsKey, best.Params,
	)
	return best, nil
}

type trialOutcome struct {
	est    model.Estimator
	report Report
	err    error
}

// runTrial fits and scores one trial. Panics become errors and the trial
// timeout, when set, bounds the whole fit-and-score.
func (t *CandidateTrainer) runTrial(ctx context.Context, trial Trial, Xtr *mat.Dense, ytr []float64, Xva *mat.Dense, yva []float64) (model.Estimator, model.Params, Report, error) {
	f, err := LookupFamily(trial.Family)
	if err != nil {
		return nil, nil, Report{}, err
	}
	params := f.seeded(t.Task, trial.Params, t.Seed)
	est, err := f.New(t.Task, params)
	if err != nil {
		return nil, nil, Report{}, err
	}

	tctx := ctx
	if t.Search.TrialTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, t.Search.TrialTimeout)
		defer cancel()
	}

	done := make(chan trialOutcome, 1)
	go func() {
		var out trialOutcome
		out.err = errors.SafeExecute("trial "+trial.Family, func() error {
			if err := model.FitWithContext(tctx, est, Xtr, column(ytr)); err != nil {
				return err
			}
			pred, err := predictVector(est, Xva)
			if err != nil {
				return err
			}
			out.report, err = scoreReport(t.Task, yva, pred)
			return err
		})
		out.est = est
		done <- out
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, nil, Report{}, out.err
		}
		return out.est, params, out.report, nil
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, nil, Report{}, ctx.Err()
		}
		return nil, nil, Report{}, errors.Newf("trial exceeded timeout of %s", t.Search.TrialTimeout)
	}
}

// persist writes model, params and finally metrics.
func (t *CandidateTrainer) persist(ctx context.Context, c *Candidate, trainRows, valRows int) error {
	env := Envelope{Family: c.Family, Task: t.Task, Scope: ScopeFold, FoldID: c.FoldID, NSamples: trainRows}
	data, err := EncodeModel(env, c.Params, c.Model)
	if err != nil {
		return errors.NewIOError("CandidateTrainer.persist", FoldKey(c.FoldID, artifactModel), err)
	}
	if err := t.Store.Put(ctx, FoldKey(c.FoldID, artifactModel), data); err != nil {
		return err
	}
	if err := storage.PutJSON(ctx, t.Store, FoldKey(c.FoldID, artifactParams), flatParams(c.Family, c.Params)); err != nil {
		return err
	}
	return storage.PutJSON(ctx, t.Store, FoldKey(c.FoldID, artifactMetrics), FoldMetrics{
		FoldID:         c.FoldID,
		RunID:          t.RunID,
		Family:         c.Family,
		Report:         c.Report,
		TrainRows:      trainRows,
		ValidationRows: valRows,
		Trials:         c.Trials,
	})
}

// flatParams adds the family name to the hyperparameters.
func flatParams(family string, params model.Params) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["family"] = family
	return out
}

func checkFold(op string, fold model_selection.Fold, X *mat.Dense, y []float64) error {
	if X == nil {
		return errors.NewConfigurationError(op, "no feature matrix")
	}
	n, _ := X.Dims()
	if len(y) != n {
		return errors.NewConfigurationErrorf(op, "%d rows but %d labels", n, len(y))
	}
	if len(fold.TrainIndices) == 0 || len(fold.ValidationIndices) == 0 {
		return errors.NewConfigurationErrorf(op, "fold %d has an empty train or validation side", fold.ID)
	}
	for _, idx := range [][]int{fold.TrainIndices, fold.ValidationIndices} {
		for _, i := range idx {
			if i < 0 || i >= n {
				return errors.NewConfigurationErrorf(op, "fold %d references row %d of %d", fold.ID, i, n)
			}
		}
	}
	return nil
}
