package preprocessing

import (
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA は主成分分析による次元削減。gonum の stat.PC で主成分を求める。
type PCA struct {
	model.BaseEstimator

	NComponents int

	Mean                   []float64
	Components             []float64 // NFeatures × NComponents（行優先）
	ExplainedVariance      []float64
	ExplainedVarianceRatio []float64
}

// NewPCA は nComponents 個の主成分を残す PCA を作成する
func NewPCA(nComponents int) *PCA {
	return &PCA{NComponents: nComponents}
}

// Fit は主成分を計算する
func (p *PCA) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("PCA.Fit", "empty data", errors.ErrEmptyData)
	}
	if p.NComponents <= 0 || p.NComponents > c || p.NComponents > r {
		return errors.NewValidationError("n_components", "must be in [1, min(n_samples, n_features)]", p.NComponents)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return errors.NewModelError("PCA.Fit", "svd failed", errors.ErrSingularMatrix)
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	p.Components = make([]float64, c*p.NComponents)
	for i := 0; i < c; i++ {
		for k := 0; k < p.NComponents; k++ {
			p.Components[i*p.NComponents+k] = vecs.At(i, k)
		}
	}

	total := 0.0
	for _, v := range vars {
		total += v
	}
	p.ExplainedVariance = make([]float64, p.NComponents)
	p.ExplainedVarianceRatio = make([]float64, p.NComponents)
	for k := 0; k < p.NComponents; k++ {
		p.ExplainedVariance[k] = vars[k]
		if total > 0 {
			p.ExplainedVarianceRatio[k] = vars[k] / total
		}
	}

	p.Mean = make([]float64, c)
	for j := 0; j < c; j++ {
		p.Mean[j] = stat.Mean(mat.Col(nil, j, X), nil)
	}

	p.SetFitted(r, c)
	return nil
}

// Transform はデータを主成分空間に射影する
func (p *PCA) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("PCA", "Transform")
	}
	r, c := X.Dims()
	if c != p.NFeatures {
		return nil, errors.NewDimensionError("PCA.Transform", p.NFeatures, c, 1)
	}

	centered := mat.NewDense(r, c, nil)
	centered.Apply(func(i, j int, v float64) float64 {
		return v - p.Mean[j]
	}, X)

	W := mat.NewDense(c, p.NComponents, p.Components)
	out := mat.NewDense(r, p.NComponents, nil)
	out.Mul(centered, W)
	return out, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (p *PCA) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	return model.FitTransform(p, X)
}
