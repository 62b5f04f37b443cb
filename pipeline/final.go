package pipeline

import (
	"context"
	"fmt"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/storage"
)

// FinalModel is the selected configuration refitted on the whole train split.
type FinalModel struct {
	Family   string
	Task     string
	Params   model.Params
	Model    model.Estimator
	NSamples int
}

// FinalTrainer refits the selected configuration from scratch.
type FinalTrainer struct {
	Store  storage.Store
	Task   string
	Seed   uint64
	Logger log.Logger
}

// NewFinalTrainer creates a final trainer from the run configuration.
func NewFinalTrainer(store storage.Store, cfg config.Config) *FinalTrainer {
	return &FinalTrainer{
		Store:  store,
		Task:   cfg.Data.Task,
		Seed:   cfg.Run.Seed,
		Logger: log.GetLoggerWithName("pipeline.final"),
	}
}

// TrainFinal validates sel's parameters against its family, constructs a
// fresh estimator and fits it on every row of train. The fold model is never
// reused. The result is written to final/model and final/params.
func (t *FinalTrainer) TrainFinal(ctx context.Context, sel Selection, train *FeatureSet) (*FinalModel, error) {
	const op = "FinalTrainer.TrainFinal"
	if err := train.check(op); err != nil {
		return nil, err
	}
	f, err := LookupFamily(sel.Family)
	if err != nil {
		return nil, errors.NewTrainingError(op, "selected family is not available", err)
	}
	params := f.seeded(t.Task, sel.Params, t.Seed)
	est, err := f.New(t.Task, params)
	if err != nil {
		return nil, errors.NewTrainingError(op, "selected parameters are invalid", err)
	}

	err = errors.SafeExecute(op, func() error {
		return model.FitWithContext(ctx, est, train.X, train.Labels())
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewTrainingError(op, fmt.Sprintf("refit of %s failed", sel.Family), err)
	}

	fm := &FinalModel{Family: sel.Family, Task: t.Task, Params: params, Model: est, NSamples: train.Len()}
	env := Envelope{Family: fm.Family, Task: fm.Task, Scope: ScopeFinal, NSamples: fm.NSamples}
	data, err := EncodeModel(env, params, est)
	if err != nil {
		return nil, errors.NewIOError(op, KeyFinalModel, err)
	}
	if err := t.Store.Put(ctx, KeyFinalModel, data); err != nil {
		return nil, err
	}
	if err := storage.PutJSON(ctx, t.Store, KeyFinalParams, flatParams(fm.Family, params)); err != nil {
		return nil, err
	}
	t.Logger.Info("final model trained",
		log.OperationKey, log.OperationFit,
		log.FamilyKey, fm.Family,
		log.SamplesKey, fm.NSamples,
		log.HyperParamsKey, params,
	)
	return fm, nil
}

// LoadFinalModel restores the model written by TrainFinal.
func LoadFinalModel(ctx context.Context, store storage.Store) (*FinalModel, error) {
	data, err := store.Get(ctx, KeyFinalModel)
	if err != nil {
		return nil, err
	}
	env, est, err := DecodeModel(data)
	if err != nil {
		return nil, errors.NewIOError("pipeline.LoadFinalModel", KeyFinalModel, err)
	}
	if env.Scope != ScopeFinal {
		return nil, errors.NewIOError("pipeline.LoadFinalModel", KeyFinalModel, errors.Newf("envelope scope is %q", env.Scope))
	}
	params, err := env.HyperParams()
	if err != nil {
		return nil, errors.NewIOError("pipeline.LoadFinalModel", KeyFinalModel, err)
	}
	return &FinalModel{Family: env.Family, Task: env.Task, Params: params, Model: est, NSamples: env.NSamples}, nil
}
