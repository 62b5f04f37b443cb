package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// outletData mimics encoded outlet-type labels: column 0 is years
// operational, column 1 is a scaled MRP that carries no signal.
func outletData() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(9, 2, []float64{
		2, 0.3,
		3, -1.2,
		4, 0.8,
		14, 0.1,
		15, -0.4,
		16, 1.5,
		30, -0.9,
		31, 0.6,
		33, 0.0,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 3, 3, 3})
	return X, y
}

func TestDecisionTreeClassifier_Criteria(t *testing.T) {
	for _, criterion := range []string{CriterionGini, CriterionEntropy} {
		t.Run(criterion, func(t *testing.T) {
			X, y := outletData()
			dt := NewDecisionTreeClassifier(WithCriterion(criterion), WithMaxDepth(4))
			require.NoError(t, dt.Fit(X, y))

			assert.Equal(t, []int{0, 1, 3}, dt.Classes())
			assert.Equal(t, 1.0, dt.Score(X, y))

			pred, err := dt.Predict(mat.NewDense(2, 2, []float64{1, 0, 40, 0}))
			require.NoError(t, err)
			assert.Equal(t, 0.0, pred.At(0, 0))
			assert.Equal(t, 3.0, pred.At(1, 0), "predictions use the original label codes")
		})
	}
}

func TestDecisionTreeClassifier_PredictProba(t *testing.T) {
	X, y := outletData()
	dt := NewDecisionTreeClassifier(WithMaxDepth(1))
	require.NoError(t, dt.Fit(X, y))

	proba, err := dt.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	require.Equal(t, 9, r)
	require.Equal(t, 3, c)

	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			p := proba.At(i, j)
			assert.True(t, p >= 0 && p <= 1, "row %d col %d: %v", i, j, p)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "row %d", i)
	}
}

func TestDecisionTreeClassifier_FeatureImportances(t *testing.T) {
	X, y := outletData()
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	imp := dt.GetFeatureImportances()
	require.Len(t, imp, 2)
	assert.Greater(t, imp[0], imp[1])
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
}

func TestDecisionTreeClassifier_Constraints(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(i%2))
	}

	shallow := NewDecisionTreeClassifier(WithMaxDepth(2))
	require.NoError(t, shallow.Fit(X, y))
	assert.LessOrEqual(t, shallow.GetDepth(), 2)

	coarse := NewDecisionTreeClassifier(WithMinSamplesSplit(6), WithMinSamplesLeaf(3))
	require.NoError(t, coarse.Fit(X, y))
	assert.LessOrEqual(t, coarse.GetNLeaves(), 16/3)
}

func TestDecisionTreeClassifier_SetParams(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	got := dt.GetParams()
	assert.Equal(t, CriterionGini, got["criterion"])
	assert.Equal(t, 2, got["min_samples_split"])

	// Values decoded from a JSON selection arrive as float64.
	require.NoError(t, dt.SetParams(map[string]interface{}{
		"criterion":         CriterionEntropy,
		"max_depth":         float64(5),
		"min_samples_split": 4,
		"min_samples_leaf":  2,
	}))
	got = dt.GetParams()
	assert.Equal(t, CriterionEntropy, got["criterion"])
	assert.Equal(t, 5, got["max_depth"])
	assert.Equal(t, 4, got["min_samples_split"])
	assert.Equal(t, 2, got["min_samples_leaf"])

	assert.Error(t, dt.SetParams(map[string]interface{}{"max_depth": 2.5}))
}

func TestDecisionTreeClassifier_NotFitted(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	X := mat.NewDense(1, 2, []float64{1, 2})

	_, err := dt.Predict(X)
	assert.Error(t, err)
	_, err = dt.PredictProba(X)
	assert.Error(t, err)
	assert.False(t, dt.IsFitted())
	assert.Equal(t, 0.0, dt.Score(X, mat.NewDense(1, 1, []float64{0})), "an unfitted tree scores zero")
}
