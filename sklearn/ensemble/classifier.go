package ensemble

import (
	"context"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// RandomForestClassifier averages the class distributions of bootstrapped
// classification trees. MaxFeatures defaults to sqrt(n_features).
type RandomForestClassifier struct {
	model.BaseEstimator
	ForestConfig

	Criterion  string
	Trees      []*tree.Tree
	ClassCodes []int
}

// NewRandomForestClassifier creates a classifier with 100 gini trees by default.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{ForestConfig: defaultConfig(), Criterion: tree.CriterionGini}
	for _, opt := range opts {
		opt(&rf.ForestConfig)
	}
	return rf
}

// Fit grows the forest on integer class labels.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext grows the forest, stopping early with ctx.Err() once ctx is done.
func (rf *RandomForestClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	const op = "RandomForestClassifier.Fit"
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
	codes, classes, err := tree.EncodeClasses(op, yv)
	if err != nil {
		return err
	}

	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = sqrtFeatures(c)
	}
	base := tree.Config{
		Criterion:       rf.Criterion,
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MinSamplesLeaf:  rf.MinSamplesLeaf,
		MaxFeatures:     maxFeatures,
		NClasses:        len(classes),
	}
	trees, err := growTrees(ctx, op, tree.AsDense(X), codes, rf.ForestConfig, base)
	if err != nil {
		return err
	}

	rf.Trees = trees
	rf.ClassCodes = classes
	rf.SetFitted(r, c)
	return nil
}

// PredictProba returns the mean class distribution per row.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	r, c := X.Dims()
	if err := rf.CheckPredict("RandomForestClassifier", c); err != nil {
		return nil, err
	}
	k := len(rf.ClassCodes)
	out := mat.NewDense(r, k, nil)
	row := make([]float64, c)
	acc := make([]float64, k)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		for j := range acc {
			acc[j] = 0
		}
		for _, t := range rf.Trees {
			for j, p := range t.Apply(row).Value {
				acc[j] += p
			}
		}
		for j := range acc {
			acc[j] /= float64(len(rf.Trees))
		}
		out.SetRow(i, acc)
	}
	return out, nil
}

// Predict returns the most probable class label per row as an n×1 matrix.
// Ties go to the smallest label.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, k := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(rf.ClassCodes[best]))
	}
	return out, nil
}

// Classes returns the sorted class labels seen during fitting.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.ClassCodes...)
}

// FeatureImportances returns the mean normalised importance over trees.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	if !rf.IsFitted() {
		return nil
	}
	return featureImportances(rf.Trees, rf.NFeatures)
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	p := rf.params()
	p["criterion"] = rf.Criterion
	return p
}

// SetParams updates the hyperparameters. The model must be refitted.
func (rf *RandomForestClassifier) SetParams(in map[string]interface{}) error {
	crit, err := model.Params(in).Str("criterion", rf.Criterion)
	if err != nil {
		return err
	}
	if err := rf.setParams(in); err != nil {
		return err
	}
	rf.Criterion = crit
	return nil
}

// ClassifierParamSpecs declares the classifier hyperparameters.
func ClassifierParamSpecs() []model.ParamSpec {
	return append(ParamSpecs(), model.ParamSpec{
		Name: "criterion", Kind: model.ParamString, Choices: []string{tree.CriterionGini, tree.CriterionEntropy},
	})
}

var (
	_ model.Classifier    = (*RandomForestClassifier)(nil)
	_ model.ContextFitter = (*RandomForestClassifier)(nil)
)
