package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Split criteria.
const (
	CriterionGini         = "gini"
	CriterionEntropy      = "entropy"
	CriterionSquaredError = "squared_error"
)

// Config holds the growth parameters shared by every CART tree.
type Config struct {
	Criterion       string
	MaxDepth        int // <= 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // features tried per split; <= 0 means all
	Seed            uint64
	NClasses        int // 0 for regression
}

func (c Config) validate() error {
	switch c.Criterion {
	case CriterionGini, CriterionEntropy:
		if c.NClasses < 1 {
			return errors.NewValidationError("criterion", "classification criterion needs class labels", c.Criterion)
		}
	case CriterionSquaredError:
		if c.NClasses != 0 {
			return errors.NewValidationError("criterion", "squared_error is a regression criterion", c.Criterion)
		}
	default:
		return errors.NewValidationError("criterion", "must be gini, entropy or squared_error", c.Criterion)
	}
	if c.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", c.MinSamplesSplit)
	}
	if c.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", c.MinSamplesLeaf)
	}
	return nil
}

// Node is one node of a fitted tree. Leaves have Left == Right == -1.
// Value is the mean target for regression and the class distribution for
// classification.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64
	NSamples  int
	Impurity  float64
	Depth     int
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a fitted CART tree. Node 0 is the root.
type Tree struct {
	Nodes       []Node
	NFeatures   int
	Importances []float64 // total impurity decrease per feature, unnormalised
}

// Build grows a tree on the rows of X selected by indices (repeats allowed,
// as produced by bootstrapping). For classification y holds class codes in
// [0, cfg.NClasses).
func Build(X *mat.Dense, y []float64, indices []int, cfg Config) (*Tree, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if r == 0 || c == 0 || len(indices) == 0 {
		return nil, errors.NewModelError("tree.Build", "empty data", errors.ErrEmptyData)
	}
	if len(y) != r {
		return nil, errors.NewDimensionError("tree.Build", r, len(y), 0)
	}
	if cfg.NClasses > 0 {
		for _, i := range indices {
			code := y[i]
			if code < 0 || code >= float64(cfg.NClasses) || code != math.Trunc(code) {
				return nil, errors.NewValueError("tree.Build", "class code out of range")
			}
		}
	}

	b := &builder{
		X:    X,
		y:    y,
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		tree: &Tree{NFeatures: c, Importances: make([]float64, c)},
	}
	idx := append([]int(nil), indices...)
	b.grow(idx, 0)
	return b.tree, nil
}

// Apply returns the leaf reached by row.
func (t *Tree) Apply(row []float64) *Node {
	n := &t.Nodes[0]
	for !n.IsLeaf() {
		if row[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n
}

// Depth returns the depth of the deepest leaf (a single leaf has depth 0).
func (t *Tree) Depth() int {
	d := 0
	for i := range t.Nodes {
		if t.Nodes[i].Depth > d {
			d = t.Nodes[i].Depth
		}
	}
	return d
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// NormalizedImportances returns impurity-based importances summing to 1
// (all zeros for a single-leaf tree).
func (t *Tree) NormalizedImportances() []float64 {
	out := make([]float64, len(t.Importances))
	total := 0.0
	for _, v := range t.Importances {
		total += v
	}
	if total <= 0 {
		return out
	}
	for i, v := range t.Importances {
		out[i] = v / total
	}
	return out
}

type builder struct {
	X    *mat.Dense
	y    []float64
	cfg  Config
	rng  *rand.Rand
	tree *Tree
}

type split struct {
	feature   int
	threshold float64
	pos       int // rows [0,pos) go left after sorting by feature
	childImp  float64
	found     bool
}

func (b *builder) grow(idx []int, depth int) int {
	value, imp := b.nodeStats(idx)
	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    value,
		NSamples: len(idx),
		Impurity: imp,
		Depth:    depth,
	})

	n := len(idx)
	if (b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) ||
		n < b.cfg.MinSamplesSplit ||
		n < 2*b.cfg.MinSamplesLeaf ||
		imp <= 1e-12 {
		return id
	}

	best := b.findSplit(idx)
	if !best.found {
		return id
	}

	b.sortBy(idx, best.feature)
	left := append([]int(nil), idx[:best.pos]...)
	right := append([]int(nil), idx[best.pos:]...)

	if decrease := float64(n)*imp - best.childImp; decrease > 0 {
		b.tree.Importances[best.feature] += decrease
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	node := &b.tree.Nodes[id]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = r
	return id
}

// candidateFeatures returns the features examined at one node, drawn
// without replacement when MaxFeatures restricts them.
func (b *builder) candidateFeatures() []int {
	nf := b.tree.NFeatures
	if b.cfg.MaxFeatures <= 0 || b.cfg.MaxFeatures >= nf {
		all := make([]int, nf)
		for i := range all {
			all[i] = i
		}
		return all
	}
	feats := b.rng.Perm(nf)[:b.cfg.MaxFeatures]
	sort.Ints(feats)
	return feats
}

func (b *builder) findSplit(idx []int) split {
	best := split{childImp: math.Inf(1)}
	n := len(idx)
	minLeaf := b.cfg.MinSamplesLeaf

	for _, f := range b.candidateFeatures() {
		b.sortBy(idx, f)
		acc := b.newAccumulator(idx)
		for pos := 1; pos < n; pos++ {
			acc.move(b.y[idx[pos-1]])
			if pos < minLeaf || n-pos < minLeaf {
				continue
			}
			lo, hi := b.X.At(idx[pos-1], f), b.X.At(idx[pos], f)
			if lo == hi {
				continue
			}
			if ci := acc.childImpurity(); ci < best.childImp-1e-12 {
				best = split{
					feature:   f,
					threshold: lo + (hi-lo)/2,
					pos:       pos,
					childImp:  ci,
					found:     true,
				}
			}
		}
	}
	return best
}

func (b *builder) sortBy(idx []int, f int) {
	sort.SliceStable(idx, func(i, j int) bool {
		return b.X.At(idx[i], f) < b.X.At(idx[j], f)
	})
}

func (b *builder) nodeStats(idx []int) ([]float64, float64) {
	n := float64(len(idx))
	if b.cfg.NClasses == 0 {
		sum, sumSq := 0.0, 0.0
		for _, i := range idx {
			sum += b.y[i]
			sumSq += b.y[i] * b.y[i]
		}
		mean := sum / n
		return []float64{mean}, math.Max(sumSq/n-mean*mean, 0)
	}

	counts := make([]float64, b.cfg.NClasses)
	for _, i := range idx {
		counts[int(b.y[i])]++
	}
	imp := classImpurity(b.cfg.Criterion, counts, n)
	for k := range counts {
		counts[k] /= n
	}
	return counts, imp
}

func classImpurity(criterion string, counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	imp := 0.0
	switch criterion {
	case CriterionEntropy:
		for _, c := range counts {
			if c > 0 {
				p := c / n
				imp -= p * math.Log2(p)
			}
		}
	default:
		imp = 1
		for _, c := range counts {
			p := c / n
			imp -= p * p
		}
	}
	return imp
}

// accumulator tracks left/right statistics while sweeping split positions.
type accumulator struct {
	criterion string
	nClasses  int
	nLeft     float64
	nRight    float64

	// regression
	sumL, sumSqL, sumR, sumSqR float64

	// classification
	countL, countR []float64
}

func (b *builder) newAccumulator(idx []int) *accumulator {
	a := &accumulator{criterion: b.cfg.Criterion, nClasses: b.cfg.NClasses, nRight: float64(len(idx))}
	if a.nClasses == 0 {
		for _, i := range idx {
			a.sumR += b.y[i]
			a.sumSqR += b.y[i] * b.y[i]
		}
		return a
	}
	a.countL = make([]float64, a.nClasses)
	a.countR = make([]float64, a.nClasses)
	for _, i := range idx {
		a.countR[int(b.y[i])]++
	}
	return a
}

// move shifts one sample with target v from the right side to the left.
func (a *accumulator) move(v float64) {
	a.nLeft++
	a.nRight--
	if a.nClasses == 0 {
		a.sumL += v
		a.sumSqL += v * v
		a.sumR -= v
		a.sumSqR -= v * v
		return
	}
	a.countL[int(v)]++
	a.countR[int(v)]--
}

// childImpurity returns n_left*imp_left + n_right*imp_right.
func (a *accumulator) childImpurity() float64 {
	if a.nClasses == 0 {
		sseL := a.sumSqL - a.sumL*a.sumL/a.nLeft
		sseR := a.sumSqR - a.sumR*a.sumR/a.nRight
		return math.Max(sseL, 0) + math.Max(sseR, 0)
	}
	return a.nLeft*classImpurity(a.criterion, a.countL, a.nLeft) +
		a.nRight*classImpurity(a.criterion, a.countR, a.nRight)
}
