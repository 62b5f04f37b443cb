package metrics

import (
	"math"

	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// NegMSEName is the name of the regression selection metric.
// The score is -MSE so that larger is better for every metric.
const NegMSEName = "neg_mean_squared_error"

// residuals は誤差の二乗和・絶対和と、yTrue の全変動をまとめて求める
type residuals struct {
	n   int
	sse float64
	sae float64
	tss float64
}

func sumResiduals(op string, yTrue, yPred mat.Vector) (residuals, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return residuals{}, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return residuals{}, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}

	truth := mat.Col(nil, 0, yTrue)
	mean := stat.Mean(truth, nil)
	r := residuals{n: n}
	for i, t := range truth {
		d := t - yPred.AtVec(i)
		r.sse += d * d
		r.sae += math.Abs(d)
		r.tss += (t - mean) * (t - mean)
	}
	return r, nil
}

// MSE は平均二乗誤差を返す
func MSE(yTrue, yPred mat.Vector) (float64, error) {
	r, err := sumResiduals("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return r.sse / float64(r.n), nil
}

// MSEMatrix accepts n×1 matrices, as returned by Predict.
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	rt, ct := yTrue.Dims()
	rp, cp := yPred.Dims()
	switch {
	case rt == 0 || ct == 0:
		return 0, errors.NewValueError("MSEMatrix", "empty matrix")
	case rt != rp || ct != cp:
		return 0, errors.NewDimensionError("MSEMatrix", rt, rp, 0)
	case ct != 1:
		return 0, errors.NewValueError("MSEMatrix", "must be a column vector (n×1 matrix)")
	}
	return MSE(mat.NewVecDense(rt, mat.Col(nil, 0, yTrue)), mat.NewVecDense(rp, mat.Col(nil, 0, yPred)))
}

// RMSE は MSE の平方根
func RMSE(yTrue, yPred mat.Vector) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差を返す
func MAE(yTrue, yPred mat.Vector) (float64, error) {
	r, err := sumResiduals("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return r.sae / float64(r.n), nil
}

// R2Score は決定係数を返す。yTrue が定数のときは未定義でエラー
func R2Score(yTrue, yPred mat.Vector) (float64, error) {
	r, err := sumResiduals("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if r.tss == 0 {
		return 0, errors.NewUndefinedMetricWarning("r2", "no variance in y_true", 0)
	}
	return 1 - r.sse/r.tss, nil
}

// RegressionReport は回帰タスクの評価指標をまとめたもの
type RegressionReport struct {
	MSE      float64 `json:"mse"`
	RMSE     float64 `json:"rmse"`
	MAE      float64 `json:"mae"`
	R2       float64 `json:"r2"`
	NSamples int     `json:"n_samples"`
}

// Score は選択用スコア（-MSE）を返す
func (r RegressionReport) Score() float64 {
	return -r.MSE
}

// NewRegressionReport computes every regression metric in one pass.
// A constant yTrue leaves R2 at 0 and emits an UndefinedMetricWarning.
func NewRegressionReport(yTrue, yPred []float64) (RegressionReport, error) {
	if len(yTrue) == 0 {
		return RegressionReport{}, errors.NewValueError("NewRegressionReport", "empty vector")
	}
	if len(yPred) != len(yTrue) {
		return RegressionReport{}, errors.NewDimensionError("NewRegressionReport", len(yTrue), len(yPred), 0)
	}

	r, err := sumResiduals("NewRegressionReport",
		mat.NewVecDense(len(yTrue), yTrue), mat.NewVecDense(len(yPred), yPred))
	if err != nil {
		return RegressionReport{}, err
	}

	n := float64(r.n)
	rep := RegressionReport{
		MSE:      r.sse / n,
		RMSE:     math.Sqrt(r.sse / n),
		MAE:      r.sae / n,
		NSamples: r.n,
	}
	if r.tss == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "no variance in y_true", 0))
	} else {
		rep.R2 = 1 - r.sse/r.tss
	}
	return rep, nil
}
