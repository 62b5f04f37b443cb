package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/core/parallel"
	"github.com/YuminosukeSato/salescv/dataset"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/sklearn/model_selection"
	"github.com/YuminosukeSato/salescv/storage"
)

// Keys written by the runner in addition to the component artifacts.
const (
	KeyValidationReport = "data_validation/report"
	KeySplitFolds       = "split/folds"
)

// Runner wires the stages together. Each stage can also be run on its own;
// state between stages travels through the store only.
type Runner struct {
	Config config.Config
	Store  storage.Store
	Status *StatusWriter
	Logger log.Logger
}

// NewRunner checks that every searched family exists for the configured
// task and returns a runner writing to store.
func NewRunner(cfg config.Config, store storage.Store) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkFamilies(cfg.Search, cfg.Data.Task); err != nil {
		return nil, err
	}
	status := NewStatusWriter(store)
	return &Runner{
		Config: cfg,
		Store:  store,
		Status: status,
		Logger: log.GetLoggerWithName("pipeline").With(log.RunIDKey, status.RunID),
	}, nil
}

// stage runs fn, logs its duration and records the status marker.
func (r *Runner) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	logger := r.Logger.With(log.StageKey, name)
	logger.Info("stage started")
	start := time.Now()

	err := fn(ctx)
	if serr := r.Status.Write(context.WithoutCancel(ctx), name, err); serr != nil {
		logger.Error("could not write status marker", serr, log.ArtifactKey, StatusKey(name))
	}
	if err != nil {
		logger.Error("stage failed", err, log.DurationMsKey, time.Since(start).Milliseconds())
		return err
	}
	logger.Info("stage finished", log.DurationMsKey, time.Since(start).Milliseconds())
	return nil
}

// Ingest copies the configured source into the ingestion directory and
// returns the path to read.
func (r *Runner) Ingest(ctx context.Context) (string, error) {
	var path string
	err := r.stage(ctx, StageIngest, func(context.Context) error {
		var err error
		path, _, err = dataset.Ingest(r.Config.Data.Source, r.Config.Data.IngestDir)
		return err
	})
	return path, err
}

// Validate loads path and checks it against the schema. The validation
// report is stored whether or not it passes.
func (r *Runner) Validate(ctx context.Context, path string) (*dataset.Dataset, error) {
	var ds *dataset.Dataset
	err := r.stage(ctx, StageValidate, func(ctx context.Context) error {
		var err error
		if ds, err = dataset.LoadCSV(path); err != nil {
			return err
		}
		return r.validate(ctx, ds)
	})
	return ds, err
}

func (r *Runner) validate(ctx context.Context, ds *dataset.Dataset) error {
	report := dataset.Validate(ds, r.Config.Schema)
	if err := storage.PutJSON(ctx, r.Store, KeyValidationReport, report); err != nil {
		return err
	}
	return report.Err()
}

// Featurize fits the feature transformer, builds the split and persists
// the transformer, both splits and the folds.
func (r *Runner) Featurize(ctx context.Context, ds *dataset.Dataset) (*SplitResult, error) {
	var split *SplitResult
	err := r.stage(ctx, StageFeaturize, func(ctx context.Context) error {
		fs, t, err := BuildFeatureSet(r.Config, ds)
		if err != nil {
			return err
		}
		splitter := NewSplitter(r.Config.Run.Seed, r.Config.Data.Group != "")
		if split, err = splitter.Split(fs, r.Config.CrossVal.K); err != nil {
			return err
		}
		r.Logger.Info("split built",
			log.SamplesKey, fs.Len(),
			log.FeaturesKey, len(fs.FeatureNames),
			log.GroupsKey, model_selection.NGroups(fs.Groups),
			"train_rows", split.Train.Len(),
			"test_rows", split.Test.Len(),
		)
		if err := SaveTransformer(ctx, r.Store, t); err != nil {
			return err
		}
		return r.saveSplit(ctx, split)
	})
	return split, err
}

func (r *Runner) saveSplit(ctx context.Context, split *SplitResult) error {
	if err := SaveFeatureSet(ctx, r.Store, KeySplitTrain, split.Train); err != nil {
		return err
	}
	if err := SaveFeatureSet(ctx, r.Store, KeySplitTest, split.Test); err != nil {
		return err
	}
	return storage.PutJSON(ctx, r.Store, KeySplitFolds, split.Folds)
}

// LoadSplit reads the split written by Featurize.
func (r *Runner) LoadSplit(ctx context.Context) (*SplitResult, error) {
	train, err := LoadFeatureSet(ctx, r.Store, KeySplitTrain)
	if err != nil {
		return nil, err
	}
	test, err := LoadFeatureSet(ctx, r.Store, KeySplitTest)
	if err != nil {
		return nil, err
	}
	var folds []model_selection.Fold
	if err := storage.GetJSON(ctx, r.Store, KeySplitFolds, &folds); err != nil {
		return nil, err
	}
	return &SplitResult{Train: train, Test: test, Folds: folds}, nil
}

// CrossValidate trains every fold on a pool of crossval.workers goroutines
// and then selects the best candidate. A fold whose trials all fail is
// logged and left without a metrics marker; any other error stops the run.
func (r *Runner) CrossValidate(ctx context.Context, split *SplitResult) (*Selection, error) {
	var sel *Selection
	err := r.stage(ctx, StageCrossVal, func(ctx context.Context) error {
		trainer := NewCandidateTrainer(r.Store, r.Config)
		trainer.RunID = r.Status.RunID
		trainer.Logger = trainer.Logger.With(log.RunIDKey, r.Status.RunID)
		err := parallel.ForEach(ctx, len(split.Folds), r.Config.CrossVal.Workers, func(ctx context.Context, i int) error {
			fold := split.Folds[i]
			_, err := trainer.TrainFold(ctx, fold, split.Train.X, split.Train.Y)
			if errors.IsTraining(err) {
				r.Logger.Warn("fold produced no candidate", err, log.FoldKey, fold.ID)
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
		selector := NewSelector(r.Store, len(split.Folds))
		selector.RunID = r.Status.RunID
		sel, err = selector.SelectBest(ctx)
		return err
	})
	return sel, err
}

// Select re-reads the fold artifacts and returns the best candidate. It
// accepts folds from any run, since it usually runs in a later process.
func (r *Runner) Select(ctx context.Context) (*Selection, error) {
	return NewSelector(r.Store, r.Config.CrossVal.K).SelectBest(ctx)
}

// TrainFinal refits the selection on the whole train split.
func (r *Runner) TrainFinal(ctx context.Context, sel *Selection, train *FeatureSet) (*FinalModel, error) {
	var fm *FinalModel
	err := r.stage(ctx, StageFinal, func(ctx context.Context) error {
		var err error
		fm, err = NewFinalTrainer(r.Store, r.Config).TrainFinal(ctx, *sel, train)
		return err
	})
	return fm, err
}

// Evaluate scores the final model on the test split.
func (r *Runner) Evaluate(ctx context.Context, fm *FinalModel, test *FeatureSet) (*EvaluationReport, error) {
	var report *EvaluationReport
	err := r.stage(ctx, StageEvaluation, func(ctx context.Context) error {
		var err error
		report, err = NewEvaluator(r.Store).Evaluate(ctx, fm, test)
		return err
	})
	return report, err
}

// Run executes every stage from ingestion to evaluation.
func (r *Runner) Run(ctx context.Context) (*EvaluationReport, error) {
	path, err := r.Ingest(ctx)
	if err != nil {
		return nil, err
	}
	ds, err := r.Validate(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.train(ctx, ds)
}

// RunDataset executes the stages after ingestion on an in-memory dataset.
func (r *Runner) RunDataset(ctx context.Context, ds *dataset.Dataset) (*EvaluationReport, error) {
	if err := r.stage(ctx, StageValidate, func(ctx context.Context) error {
		return r.validate(ctx, ds)
	}); err != nil {
		return nil, err
	}
	return r.train(ctx, ds)
}

func (r *Runner) train(ctx context.Context, ds *dataset.Dataset) (*EvaluationReport, error) {
	split, err := r.Featurize(ctx, ds)
	if err != nil {
		return nil, err
	}
	sel, err := r.CrossValidate(ctx, split)
	if err != nil {
		return nil, err
	}
	fm, err := r.TrainFinal(ctx, sel, split.Train)
	if err != nil {
		return nil, err
	}
	return r.Evaluate(ctx, fm, split.Test)
}
