package preprocessing

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Imputation strategies.
const (
	StrategyMean         = "mean"
	StrategyMedian       = "median"
	StrategyMostFrequent = "most_frequent"
)

// SimpleImputer は数値行列の欠損値（NaN）を列ごとの統計量で補完する
type SimpleImputer struct {
	model.BaseEstimator

	Strategy   string
	Statistics []float64 // 列ごとの補完値
}

// NewSimpleImputer は指定した戦略の SimpleImputer を作成する
func NewSimpleImputer(strategy string) *SimpleImputer {
	return &SimpleImputer{Strategy: strategy}
}

// Fit は列ごとの補完値を計算する。全てが欠損の列は 0 で補完する。
func (s *SimpleImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	switch s.Strategy {
	case StrategyMean, StrategyMedian, StrategyMostFrequent:
	default:
		return errors.NewValidationError("strategy", "must be mean, median or most_frequent", s.Strategy)
	}

	s.Statistics = make([]float64, c)
	col := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		col = col[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		if len(col) == 0 {
			continue
		}
		switch s.Strategy {
		case StrategyMean:
			sum := 0.0
			for _, v := range col {
				sum += v
			}
			s.Statistics[j] = sum / float64(len(col))
		case StrategyMedian:
			sort.Float64s(col)
			m := len(col) / 2
			if len(col)%2 == 0 {
				s.Statistics[j] = (col[m-1] + col[m]) / 2
			} else {
				s.Statistics[j] = col[m]
			}
		case StrategyMostFrequent:
			s.Statistics[j] = mostFrequentFloat(col)
		}
	}

	s.SetFitted(r, c)
	return nil
}

// Transform は NaN を学習済みの補完値で置き換える
func (s *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("SimpleImputer", "Transform")
	}
	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("SimpleImputer.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		if math.IsNaN(v) {
			return s.Statistics[j]
		}
		return v
	}, X)
	return result, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (s *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	return model.FitTransform(s, X)
}

// mostFrequentFloat は最頻値を返す。同数の場合は小さい値を優先する
func mostFrequentFloat(values []float64) float64 {
	counts := make(map[float64]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := 0.0, -1
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}

// CategoricalImputer は文字列列の欠損値（空文字）を最頻値で補完する
type CategoricalImputer struct {
	Fitted     bool
	NFeatures  int
	Statistics []string
}

// NewCategoricalImputer は最頻値で補完する CategoricalImputer を作成する
func NewCategoricalImputer() *CategoricalImputer {
	return &CategoricalImputer{}
}

// Fit は列ごとの最頻値を計算する。同数の場合は辞書順で小さい値を優先する
func (c *CategoricalImputer) Fit(X [][]string) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return errors.NewModelError("CategoricalImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	nCols := len(X[0])
	c.Statistics = make([]string, nCols)
	for j := 0; j < nCols; j++ {
		counts := make(map[string]int)
		for i, row := range X {
			if len(row) != nCols {
				return errors.NewDimensionError("CategoricalImputer.Fit", nCols, len(row), 1)
			}
			if v := X[i][j]; v != "" {
				counts[v]++
			}
		}
		best, bestCount := "", 0
		for v, n := range counts {
			if n > bestCount || (n == bestCount && v < best) {
				best, bestCount = v, n
			}
		}
		c.Statistics[j] = best
	}
	c.NFeatures = nCols
	c.Fitted = true
	return nil
}

// Transform は空文字を最頻値で置き換えた新しいスライスを返す
func (c *CategoricalImputer) Transform(X [][]string) ([][]string, error) {
	if !c.Fitted {
		return nil, errors.NewNotFittedError("CategoricalImputer", "Transform")
	}
	out := make([][]string, len(X))
	for i, row := range X {
		if len(row) != c.NFeatures {
			return nil, errors.NewDimensionError("CategoricalImputer.Transform", c.NFeatures, len(row), 1)
		}
		out[i] = make([]string, len(row))
		for j, v := range row {
			if v == "" {
				v = c.Statistics[j]
			}
			out[i][j] = v
		}
	}
	return out, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (c *CategoricalImputer) FitTransform(X [][]string) ([][]string, error) {
	if err := c.Fit(X); err != nil {
		return nil, err
	}
	return c.Transform(X)
}
