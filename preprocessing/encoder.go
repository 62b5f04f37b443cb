package preprocessing

import (
	"sort"

	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// OneHotEncoder は文字列のカテゴリ列を0/1のダミー列に展開する。
// 学習時に見なかったカテゴリは全て0の行になる（handle_unknown="ignore" 相当）。
type OneHotEncoder struct {
	Fitted     bool
	Columns    []string   // 入力列名（出力列名の生成に使う）
	Categories [][]string // 列ごとのソート済みカテゴリ
}

// NewOneHotEncoder は新しい OneHotEncoder を作成する
func NewOneHotEncoder(columns []string) *OneHotEncoder {
	return &OneHotEncoder{Columns: columns}
}

// Fit は列ごとのカテゴリ集合を学習する
func (e *OneHotEncoder) Fit(X [][]string) error {
	if len(X) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	nCols := len(X[0])
	if len(e.Columns) != 0 && len(e.Columns) != nCols {
		return errors.NewDimensionError("OneHotEncoder.Fit", len(e.Columns), nCols, 1)
	}

	e.Categories = make([][]string, nCols)
	for j := 0; j < nCols; j++ {
		seen := make(map[string]struct{})
		for _, row := range X {
			if len(row) != nCols {
				return errors.NewDimensionError("OneHotEncoder.Fit", nCols, len(row), 1)
			}
			seen[row[j]] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
	}
	e.Fitted = true
	return nil
}

// NOutputs は変換後の列数を返す
func (e *OneHotEncoder) NOutputs() int {
	n := 0
	for _, cats := range e.Categories {
		n += len(cats)
	}
	return n
}

// FeatureNames は "<列名>_<カテゴリ>" 形式の出力列名を返す
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0, e.NOutputs())
	for j, cats := range e.Categories {
		prefix := "x"
		if j < len(e.Columns) {
			prefix = e.Columns[j]
		}
		for _, c := range cats {
			names = append(names, prefix+"_"+c)
		}
	}
	return names
}

// Transform はカテゴリを one-hot 行列に変換する
func (e *OneHotEncoder) Transform(X [][]string) (*mat.Dense, error) {
	if !e.Fitted {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	if len(X) == 0 {
		return nil, errors.NewModelError("OneHotEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	offsets := make([]int, len(e.Categories))
	index := make([]map[string]int, len(e.Categories))
	off := 0
	for j, cats := range e.Categories {
		offsets[j] = off
		index[j] = make(map[string]int, len(cats))
		for k, c := range cats {
			index[j][c] = k
		}
		off += len(cats)
	}

	out := mat.NewDense(len(X), off, nil)
	for i, row := range X {
		if len(row) != len(e.Categories) {
			return nil, errors.NewDimensionError("OneHotEncoder.Transform", len(e.Categories), len(row), 1)
		}
		for j, v := range row {
			if k, ok := index[j][v]; ok {
				out.Set(i, offsets[j]+k, 1)
			}
		}
	}
	return out, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (e *OneHotEncoder) FitTransform(X [][]string) (*mat.Dense, error) {
	if err := e.Fit(X); err != nil {
		return nil, err
	}
	return e.Transform(X)
}

// LabelEncoder は分類ターゲットの文字列ラベルを 0..n-1 の整数コードに変換する
type LabelEncoder struct {
	Classes []string // ソート済み。インデックスがコード
}

// NewLabelEncoder は新しい LabelEncoder を作成する
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{}
}

// Fit はラベル集合を学習する
func (l *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	seen := make(map[string]struct{})
	for _, v := range labels {
		seen[v] = struct{}{}
	}
	l.Classes = make([]string, 0, len(seen))
	for v := range seen {
		l.Classes = append(l.Classes, v)
	}
	sort.Strings(l.Classes)
	return nil
}

// Transform はラベルを整数コード（float64）に変換する。未知ラベルはエラー
func (l *LabelEncoder) Transform(labels []string) ([]float64, error) {
	if l.Classes == nil {
		return nil, errors.NewNotFittedError("LabelEncoder", "Transform")
	}
	index := make(map[string]int, len(l.Classes))
	for i, c := range l.Classes {
		index[c] = i
	}
	out := make([]float64, len(labels))
	for i, v := range labels {
		code, ok := index[v]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform", "unseen label "+v)
		}
		out[i] = float64(code)
	}
	return out, nil
}

// InverseTransform は整数コードを元のラベルに戻す
func (l *LabelEncoder) InverseTransform(codes []float64) ([]string, error) {
	if l.Classes == nil {
		return nil, errors.NewNotFittedError("LabelEncoder", "InverseTransform")
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		k := int(c)
		if k < 0 || k >= len(l.Classes) || float64(k) != c {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", "code out of range")
		}
		out[i] = l.Classes[k]
	}
	return out, nil
}
