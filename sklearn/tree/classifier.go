package tree

import (
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DecisionTreeClassifier is a CART classifier.
type DecisionTreeClassifier struct {
	model.BaseEstimator
	params

	tree    *Tree
	classes []int
}

// NewDecisionTreeClassifier creates a classifier (criterion "gini" by default).
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{params: defaultParams(CriterionGini)}
	for _, opt := range opts {
		opt(&dt.params)
	}
	return dt
}

// Fit grows the tree on X and the integer class labels in y (n×1).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	Xd, yv, err := checkFitInput("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	codes, classes, err := EncodeClasses("DecisionTreeClassifier.Fit", yv)
	if err != nil {
		return err
	}

	t, err := Build(Xd, codes, allIndices(len(codes)), dt.config(len(classes)))
	if err != nil {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "build failed", err)
	}

	r, c := Xd.Dims()
	dt.tree = t
	dt.classes = classes
	dt.SetFitted(r, c)
	return nil
}

// PredictProba returns class probabilities, one column per entry of Classes().
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	r, c := X.Dims()
	if err := dt.CheckPredict("DecisionTreeClassifier", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, len(dt.classes), nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.tree.Apply(row).Value)
	}
	return out, nil
}

// Predict returns the most probable class label for each row as an n×1 matrix.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
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
		out.Set(i, 0, float64(dt.classes[best]))
	}
	return out, nil
}

// Score returns the mean accuracy on X and y (0 if prediction fails).
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := y.Dims()
	if r == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// Classes returns the sorted class labels seen during fitting.
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes...)
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	if dt.tree == nil {
		return 0
	}
	return dt.tree.Depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	if dt.tree == nil {
		return 0
	}
	return dt.tree.NLeaves()
}

// GetFeatureImportances returns normalised impurity-based importances.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	if dt.tree == nil {
		return nil
	}
	return dt.tree.NormalizedImportances()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return dt.get()
}

// SetParams updates the hyperparameters. The model must be refitted.
func (dt *DecisionTreeClassifier) SetParams(p map[string]interface{}) error {
	return dt.set(p)
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	return encodeSnapshot(dt.snapshot(dt.BaseEstimator, dt.tree, dt.classes))
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	s, err := decodeSnapshot(data)
	if err != nil {
		return err
	}
	dt.params = s.params()
	dt.BaseEstimator = s.State
	dt.tree = s.Tree
	dt.classes = s.Classes
	return nil
}

var (
	_ model.Classifier      = (*DecisionTreeClassifier)(nil)
	_ model.ParameterGetter = (*DecisionTreeClassifier)(nil)
	_ model.ParameterSetter = (*DecisionTreeClassifier)(nil)
)
