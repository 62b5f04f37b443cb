package ensemble

import (
	"context"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// RandomForestRegressor averages the predictions of bootstrapped
// regression trees. MaxFeatures defaults to all features.
type RandomForestRegressor struct {
	model.BaseEstimator
	ForestConfig

	Trees []*tree.Tree
}

// NewRandomForestRegressor creates a regressor with 100 trees by default.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	rf := &RandomForestRegressor{ForestConfig: defaultConfig()}
	for _, opt := range opts {
		opt(&rf.ForestConfig)
	}
	return rf
}

// Fit grows the forest.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext grows the forest, stopping early with ctx.Err() once ctx is done.
func (rf *RandomForestRegressor) FitContext(ctx context.Context, X, y mat.Matrix) error {
	const op = "RandomForestRegressor.Fit"
	if err := rf.validate(); err != nil {
		return err
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if yr, _ := y.Dims(); yr != r {
		return errors.NewDimensionError(op, r, yr, 0)
	}
	yv, err := tree.ColumnValues(op, y)
	if err != nil {
		return err
	}

	base := tree.Config{
		Criterion:       tree.CriterionSquaredError,
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MinSamplesLeaf:  rf.MinSamplesLeaf,
		MaxFeatures:     rf.MaxFeatures,
	}
	trees, err := growTrees(ctx, op, tree.AsDense(X), yv, rf.ForestConfig, base)
	if err != nil {
		return err
	}

	rf.Trees = trees
	rf.SetFitted(r, c)
	return nil
}

// Predict returns the mean tree prediction per row as an n×1 matrix.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, c := X.Dims()
	if err := rf.CheckPredict("RandomForestRegressor", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	k := float64(len(rf.Trees))
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		sum := 0.0
		for _, t := range rf.Trees {
			sum += t.Apply(row).Value[0]
		}
		out.Set(i, 0, sum/k)
	}
	return out, nil
}

// FeatureImportances returns the mean normalised importance over trees.
func (rf *RandomForestRegressor) FeatureImportances() []float64 {
	if !rf.IsFitted() {
		return nil
	}
	return featureImportances(rf.Trees, rf.NFeatures)
}

// GetParams returns the hyperparameters.
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	return rf.params()
}

// SetParams updates the hyperparameters. The model must be refitted.
func (rf *RandomForestRegressor) SetParams(p map[string]interface{}) error {
	return rf.setParams(p)
}
