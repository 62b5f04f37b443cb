package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/salescv/core/model"
)

func TestStandardScalerFitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	scaler := NewStandardScalerDefault()
	out, err := scaler.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, scaler.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), scaler.Scale[0], 1e-12)
	assert.Equal(t, 1.0, scaler.Scale[1], "constant column keeps unit scale")

	col := mat.Col(nil, 0, out)
	sum := 0.0
	for _, v := range col {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-12)
	assert.Equal(t, 0.0, out.At(0, 1))

	back, err := scaler.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-12))
}

func TestStandardScalerErrors(t *testing.T) {
	scaler := NewStandardScalerDefault()
	_, err := scaler.Transform(mat.NewDense(1, 1, []float64{1}))
	assert.Error(t, err, "not fitted")

	require.NoError(t, scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = scaler.Transform(mat.NewDense(1, 3, []float64{1, 2, 3}))
	assert.Error(t, err, "dimension mismatch")
}

func TestStandardScalerGobRoundTrip(t *testing.T) {
	scaler := NewStandardScalerDefault()
	require.NoError(t, scaler.Fit(mat.NewDense(3, 1, []float64{1, 2, 3})))

	data, err := model.MarshalModel(scaler)
	require.NoError(t, err)

	var loaded StandardScaler
	require.NoError(t, model.UnmarshalModel(data, &loaded))
	assert.True(t, loaded.IsFitted())
	assert.Equal(t, scaler.Mean, loaded.Mean)
}

func TestSimpleImputerStrategies(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(4, 2, []float64{
		1, nan,
		2, 5,
		nan, 5,
		6, 7,
	})

	tests := []struct {
		strategy string
		want     []float64
	}{
		{StrategyMean, []float64{3, 17.0 / 3.0}},
		{StrategyMedian, []float64{2, 5}},
		{StrategyMostFrequent, []float64{1, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			imp := NewSimpleImputer(tt.strategy)
			out, err := imp.FitTransform(X)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, imp.Statistics, 1e-12)
			assert.InDelta(t, tt.want[1], out.At(0, 1), 1e-12)
			assert.InDelta(t, tt.want[0], out.At(2, 0), 1e-12)
			assert.Equal(t, 2.0, out.At(1, 0), "observed values are untouched")
		})
	}
}

func TestSimpleImputerRejectsUnknownStrategy(t *testing.T) {
	err := NewSimpleImputer("constant").Fit(mat.NewDense(1, 1, []float64{1}))
	assert.Error(t, err)
}

func TestCategoricalImputer(t *testing.T) {
	X := [][]string{
		{"Low Fat", "Small"},
		{"Regular", ""},
		{"Low Fat", "Medium"},
		{"", "Medium"},
	}
	imp := NewCategoricalImputer()
	out, err := imp.FitTransform(X)
	require.NoError(t, err)

	assert.Equal(t, []string{"Low Fat", "Medium"}, imp.Statistics)
	assert.Equal(t, "Medium", out[1][1])
	assert.Equal(t, "Low Fat", out[3][0])
	assert.Equal(t, "", X[1][1], "input must not be mutated")
}

func TestOneHotEncoderIgnoresUnknown(t *testing.T) {
	enc := NewOneHotEncoder([]string{"Outlet_Size", "Outlet_Type"})
	train := [][]string{
		{"Small", "Grocery"},
		{"Medium", "Supermarket"},
		{"Small", "Supermarket"},
	}
	out, err := enc.FitTransform(train)
	require.NoError(t, err)

	assert.Equal(t, 4, enc.NOutputs())
	assert.Equal(t, []string{
		"Outlet_Size_Medium", "Outlet_Size_Small",
		"Outlet_Type_Grocery", "Outlet_Type_Supermarket",
	}, enc.FeatureNames())
	assert.Equal(t, []float64{0, 1, 1, 0}, out.RawRowView(0))

	unseen, err := enc.Transform([][]string{{"High", "Grocery"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 0}, unseen.RawRowView(0))

	_, err = enc.Transform([][]string{{"Small"}})
	assert.Error(t, err)
}

func TestLabelEncoder(t *testing.T) {
	enc := NewLabelEncoder()
	require.NoError(t, enc.Fit([]string{"high", "low", "medium", "low"}))
	assert.Equal(t, []string{"high", "low", "medium"}, enc.Classes)

	codes, err := enc.Transform([]string{"medium", "high"})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, codes)

	labels, err := enc.InverseTransform(codes)
	require.NoError(t, err)
	assert.Equal(t, []string{"medium", "high"}, labels)

	_, err = enc.Transform([]string{"unknown"})
	assert.Error(t, err)
	_, err = enc.InverseTransform([]float64{7})
	assert.Error(t, err)
}

func TestPCAProjectsOntoDominantAxis(t *testing.T) {
	// Points on the line y = 2x: one component explains all variance.
	X := mat.NewDense(5, 2, []float64{
		1, 2,
		2, 4,
		3, 6,
		4, 8,
		5, 10,
	})

	pca := NewPCA(1)
	out, err := pca.FitTransform(X)
	require.NoError(t, err)

	r, c := out.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 1, c)
	assert.InDelta(t, 1.0, pca.ExplainedVarianceRatio[0], 1e-9)
	assert.InDelta(t, 0.0, out.At(2, 0), 1e-9, "mean point projects to origin")
	assert.InDelta(t, math.Abs(out.At(0, 0)), math.Abs(out.At(4, 0)), 1e-9)
}

func TestPCAValidation(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 7})
	assert.Error(t, NewPCA(3).Fit(X))
	assert.Error(t, NewPCA(0).Fit(X))

	_, err := NewPCA(1).Transform(X)
	assert.Error(t, err)
}
