package tree

import (
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DecisionTreeRegressor is a CART regressor minimising squared error.
type DecisionTreeRegressor struct {
	model.BaseEstimator
	params

	tree *Tree
}

// NewDecisionTreeRegressor creates a regressor (criterion "squared_error").
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{params: defaultParams(CriterionSquaredError)}
	for _, opt := range opts {
		opt(&dt.params)
	}
	return dt
}

// Fit grows the tree on X and the continuous targets in y (n×1).
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	Xd, yv, err := checkFitInput("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}

	t, err := Build(Xd, yv, allIndices(len(yv)), dt.config(0))
	if err != nil {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "build failed", err)
	}

	r, c := Xd.Dims()
	dt.tree = t
	dt.SetFitted(r, c)
	return nil
}

// Predict returns the leaf mean for each row as an n×1 matrix.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, c := X.Dims()
	if err := dt.CheckPredict("DecisionTreeRegressor", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.tree.Apply(row).Value[0])
	}
	return out, nil
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeRegressor) GetDepth() int {
	if dt.tree == nil {
		return 0
	}
	return dt.tree.Depth()
}

// GetFeatureImportances returns normalised impurity-based importances.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	if dt.tree == nil {
		return nil
	}
	return dt.tree.NormalizedImportances()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return dt.get()
}

// SetParams updates the hyperparameters. The model must be refitted.
func (dt *DecisionTreeRegressor) SetParams(p map[string]interface{}) error {
	return dt.set(p)
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeRegressor) GobEncode() ([]byte, error) {
	return encodeSnapshot(dt.snapshot(dt.BaseEstimator, dt.tree, nil))
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeRegressor) GobDecode(data []byte) error {
	s, err := decodeSnapshot(data)
	if err != nil {
		return err
	}
	dt.params = s.params()
	dt.BaseEstimator = s.State
	dt.tree = s.Tree
	return nil
}
