// Package tree implements CART decision trees for classification and
// regression with a scikit-learn style API.
//
//	dt := tree.NewDecisionTreeClassifier(
//	    tree.WithCriterion("gini"),
//	    tree.WithMaxDepth(5),
//	)
//	err := dt.Fit(X, y)
//	proba, err := dt.PredictProba(X)
package tree

import (
	"bytes"
	"encoding/gob"
	"math"
	"sort"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// params holds the hyperparameters common to both tree types.
type params struct {
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	randomState     int64
}

// Option configures a decision tree.
type Option func(*params)

// WithCriterion sets the split criterion ("gini", "entropy" or "squared_error").
func WithCriterion(criterion string) Option {
	return func(p *params) { p.criterion = criterion }
}

// WithMaxDepth limits the tree depth. Values <= 0 mean unlimited.
func WithMaxDepth(depth int) Option {
	return func(p *params) { p.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(p *params) { p.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(p *params) { p.minSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features tried per split (<= 0: all).
func WithMaxFeatures(n int) Option {
	return func(p *params) { p.maxFeatures = n }
}

// WithRandomState seeds the feature subsampling.
func WithRandomState(seed int64) Option {
	return func(p *params) { p.randomState = seed }
}

func defaultParams(criterion string) params {
	return params{
		criterion:       criterion,
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		randomState:     0,
	}
}

func (p *params) config(nClasses int) Config {
	return Config{
		Criterion:       p.criterion,
		MaxDepth:        p.maxDepth,
		MinSamplesSplit: p.minSamplesSplit,
		MinSamplesLeaf:  p.minSamplesLeaf,
		MaxFeatures:     p.maxFeatures,
		Seed:            uint64(p.randomState),
		NClasses:        nClasses,
	}
}

func (p *params) get() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         p.criterion,
		"max_depth":         p.maxDepth,
		"min_samples_split": p.minSamplesSplit,
		"min_samples_leaf":  p.minSamplesLeaf,
		"max_features":      p.maxFeatures,
		"random_state":      p.randomState,
	}
}

func (p *params) set(in map[string]interface{}) error {
	mp := model.Params(in)
	var err error
	if p.criterion, err = mp.Str("criterion", p.criterion); err != nil {
		return err
	}
	if p.maxDepth, err = mp.Int("max_depth", p.maxDepth); err != nil {
		return err
	}
	if p.minSamplesSplit, err = mp.Int("min_samples_split", p.minSamplesSplit); err != nil {
		return err
	}
	if p.minSamplesLeaf, err = mp.Int("min_samples_leaf", p.minSamplesLeaf); err != nil {
		return err
	}
	if p.maxFeatures, err = mp.Int("max_features", p.maxFeatures); err != nil {
		return err
	}
	seed, err := mp.Int("random_state", int(p.randomState))
	if err != nil {
		return err
	}
	p.randomState = int64(seed)
	return nil
}

// ParamSpecs declares the regressor hyperparameters accepted by SetParams.
func ParamSpecs() []model.ParamSpec {
	return []model.ParamSpec{
		{Name: "max_depth", Kind: model.ParamInt},
		{Name: "min_samples_split", Kind: model.ParamInt},
		{Name: "min_samples_leaf", Kind: model.ParamInt},
		{Name: "max_features", Kind: model.ParamInt},
		{Name: "random_state", Kind: model.ParamInt},
	}
}

// ClassifierParamSpecs adds the classification criteria to ParamSpecs.
func ClassifierParamSpecs() []model.ParamSpec {
	return append(ParamSpecs(), model.ParamSpec{
		Name: "criterion", Kind: model.ParamString, Choices: []string{CriterionGini, CriterionEntropy},
	})
}

// snapshot is the gob form of a fitted tree.
type snapshot struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64
	State           model.BaseEstimator
	Tree            *Tree
	Classes         []int
}

func (p *params) snapshot(state model.BaseEstimator, t *Tree, classes []int) snapshot {
	return snapshot{
		Criterion:       p.criterion,
		MaxDepth:        p.maxDepth,
		MinSamplesSplit: p.minSamplesSplit,
		MinSamplesLeaf:  p.minSamplesLeaf,
		MaxFeatures:     p.maxFeatures,
		RandomState:     p.randomState,
		State:           state,
		Tree:            t,
		Classes:         classes,
	}
}

func (s snapshot) params() params {
	return params{
		criterion:       s.Criterion,
		maxDepth:        s.MaxDepth,
		minSamplesSplit: s.MinSamplesSplit,
		minSamplesLeaf:  s.MinSamplesLeaf,
		maxFeatures:     s.MaxFeatures,
		randomState:     s.RandomState,
	}
}

func encodeSnapshot(s snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "encode tree")
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return s, errors.Wrap(err, "decode tree")
	}
	return s, nil
}

// AsDense returns X as a *mat.Dense without copying when possible.
func AsDense(X mat.Matrix) *mat.Dense {
	if d, ok := X.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(X)
}

// ColumnValues flattens an n×1 target matrix.
func ColumnValues(op string, y mat.Matrix) ([]float64, error) {
	r, c := y.Dims()
	if c != 1 {
		return nil, errors.NewDimensionError(op, 1, c, 1)
	}
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = y.At(i, 0)
	}
	return out, nil
}

// EncodeClasses maps integer labels to codes 0..k-1 and returns the sorted
// label set.
func EncodeClasses(op string, labels []float64) ([]float64, []int, error) {
	set := make(map[int]struct{})
	for _, v := range labels {
		if v != math.Trunc(v) || math.IsNaN(v) {
			return nil, nil, errors.NewValueError(op, "class labels must be integers")
		}
		set[int(v)] = struct{}{}
	}
	classes := make([]int, 0, len(set))
	for c := range set {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	codes := make([]float64, len(labels))
	for i, v := range labels {
		codes[i] = float64(index[int(v)])
	}
	return codes, classes, nil
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func checkFitInput(op string, X mat.Matrix, y mat.Matrix) (*mat.Dense, []float64, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	yr, _ := y.Dims()
	if yr != r {
		return nil, nil, errors.NewDimensionError(op, r, yr, 0)
	}
	yv, err := ColumnValues(op, y)
	if err != nil {
		return nil, nil, err
	}
	return AsDense(X), yv, nil
}
