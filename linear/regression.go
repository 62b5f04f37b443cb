package linear

import (
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/core/parallel"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// Ridge はL2正則化付き線形回帰モデル。Alpha=0 で通常の最小二乗法になる。
// 切片は正則化しない。
type Ridge struct {
	model.BaseEstimator

	Alpha        float64
	FitIntercept bool

	Coef []float64 // 重み（係数）
	Bias float64   // 切片
}

// NewRidge は新しい Ridge モデルを作成する（Alpha=1, 切片あり）
func NewRidge(opts ...Option) *Ridge {
	r := &Ridge{Alpha: 1.0, FitIntercept: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ParamSpecs は SetParams が受け付けるパラメータの宣言
func ParamSpecs() []model.ParamSpec {
	return []model.ParamSpec{
		{Name: "alpha", Kind: model.ParamFloat},
	}
}

// Fit は (XᵀX + αI) w = Xᵀy を解いて重みを求める。
// 切片ありの場合は X と y を中心化してから解く。
func (m *Ridge) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("Ridge.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("Ridge.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("Ridge.Fit", "y must be a column vector")
	}
	if m.Alpha < 0 {
		return errors.NewValidationError("alpha", "must be >= 0", m.Alpha)
	}

	xMean := make([]float64, c)
	yMean := 0.0
	if m.FitIntercept {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				xMean[j] += X.At(i, j)
			}
			yMean += y.At(i, 0)
		}
		for j := range xMean {
			xMean[j] /= float64(r)
		}
		yMean /= float64(r)
	}

	Xc := mat.NewDense(r, c, nil)
	yc := mat.NewVecDense(r, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, 0, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				Xc.Set(i, j, X.At(i, j)-xMean[j])
			}
			yc.SetVec(i, y.At(i, 0)-yMean)
		}
	})

	var gram mat.SymDense
	gram.SymOuterK(1, Xc.T())
	for j := 0; j < c; j++ {
		gram.SetSym(j, j, gram.At(j, j)+m.Alpha)
	}

	var xty mat.VecDense
	xty.MulVec(Xc.T(), yc)

	// 正定値なら Cholesky、そうでなければ（alpha=0 の退化ケース）LU で解く
	var w mat.VecDense
	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); ok {
		if err := chol.SolveVecTo(&w, &xty); err != nil {
			return errors.NewModelError("Ridge.Fit", "singular matrix", errors.ErrSingularMatrix)
		}
	} else if err := w.SolveVec(&gram, &xty); err != nil {
		return errors.NewModelError("Ridge.Fit", "singular matrix", errors.ErrSingularMatrix)
	}

	m.Coef = make([]float64, c)
	bias := yMean
	for j := 0; j < c; j++ {
		m.Coef[j] = w.AtVec(j)
		bias -= m.Coef[j] * xMean[j]
	}
	m.Bias = bias

	m.SetFitted(r, c)
	return nil
}

// Predict は入力データに対する予測を行う
func (m *Ridge) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, c := X.Dims()
	if err := m.CheckPredict("Ridge", c); err != nil {
		return nil, err
	}

	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := m.Bias
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * m.Coef[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// Weights は学習された重み（係数）を返す
func (m *Ridge) Weights() []float64 {
	return append([]float64(nil), m.Coef...)
}

// Intercept は学習された切片を返す
func (m *Ridge) Intercept() float64 {
	return m.Bias
}

// Score はモデルの決定係数（R²）を計算する
func (m *Ridge) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := m.Predict(X)
	if err != nil {
		return 0, err
	}

	r, _ := y.Dims()
	var yMean float64
	for i := 0; i < r; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(r)

	var tss, rss float64
	for i := 0; i < r; i++ {
		yTrue := y.At(i, 0)
		d := yTrue - yPred.At(i, 0)
		tss += (yTrue - yMean) * (yTrue - yMean)
		rss += d * d
	}
	if tss == 0 {
		return 0, errors.Newf("total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}

// GetParams はハイパーパラメータを返す
func (m *Ridge) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"alpha":         m.Alpha,
		"fit_intercept": m.FitIntercept,
	}
}

// SetParams はハイパーパラメータを更新する
func (m *Ridge) SetParams(p map[string]interface{}) error {
	alpha, err := model.Params(p).Float("alpha", m.Alpha)
	if err != nil {
		return err
	}
	m.Alpha = alpha
	return nil
}

var _ model.LinearModel = (*Ridge)(nil)
