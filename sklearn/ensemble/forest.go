// Package ensemble implements bagged CART forests.
//
// Trees are grown in parallel. Each tree draws its bootstrap sample and its
// feature subsets from a generator seeded with a value derived from the
// forest seed and the tree index, so a fitted forest does not depend on how
// the trees were scheduled.
package ensemble

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/core/parallel"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// ForestConfig holds hyperparameters shared by both forest types.
// Fields are exported so fitted forests can be gob-encoded.
type ForestConfig struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // <= 0 selects the per-task default
	RandomState     int64
	NJobs           int // <= 0 means runtime.NumCPU()
}

// Option configures a forest.
type Option func(*ForestConfig)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option { return func(c *ForestConfig) { c.NEstimators = n } }

// WithMaxDepth limits tree depth (<= 0: unlimited).
func WithMaxDepth(d int) Option { return func(c *ForestConfig) { c.MaxDepth = d } }

// WithMinSamplesSplit sets the minimum samples needed to split a node.
func WithMinSamplesSplit(n int) Option { return func(c *ForestConfig) { c.MinSamplesSplit = n } }

// WithMinSamplesLeaf sets the minimum samples per leaf.
func WithMinSamplesLeaf(n int) Option { return func(c *ForestConfig) { c.MinSamplesLeaf = n } }

// WithMaxFeatures sets the features tried per split.
func WithMaxFeatures(n int) Option { return func(c *ForestConfig) { c.MaxFeatures = n } }

// WithRandomState seeds bootstrapping and feature subsampling.
func WithRandomState(seed int64) Option { return func(c *ForestConfig) { c.RandomState = seed } }

// WithNJobs bounds the number of trees grown concurrently.
func WithNJobs(n int) Option { return func(c *ForestConfig) { c.NJobs = n } }

func defaultConfig() ForestConfig {
	return ForestConfig{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
}

// ParamSpecs declares the hyperparameters accepted by SetParams.
func ParamSpecs() []model.ParamSpec {
	return []model.ParamSpec{
		{Name: "n_estimators", Kind: model.ParamInt},
		{Name: "max_depth", Kind: model.ParamInt},
		{Name: "min_samples_split", Kind: model.ParamInt},
		{Name: "min_samples_leaf", Kind: model.ParamInt},
		{Name: "max_features", Kind: model.ParamInt},
		{Name: "random_state", Kind: model.ParamInt},
	}
}

func (c *ForestConfig) params() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      c.NEstimators,
		"max_depth":         c.MaxDepth,
		"min_samples_split": c.MinSamplesSplit,
		"min_samples_leaf":  c.MinSamplesLeaf,
		"max_features":      c.MaxFeatures,
		"random_state":      c.RandomState,
	}
}

func (c *ForestConfig) setParams(in map[string]interface{}) error {
	p := model.Params(in)
	var err error
	if c.NEstimators, err = p.Int("n_estimators", c.NEstimators); err != nil {
		return err
	}
	if c.MaxDepth, err = p.Int("max_depth", c.MaxDepth); err != nil {
		return err
	}
	if c.MinSamplesSplit, err = p.Int("min_samples_split", c.MinSamplesSplit); err != nil {
		return err
	}
	if c.MinSamplesLeaf, err = p.Int("min_samples_leaf", c.MinSamplesLeaf); err != nil {
		return err
	}
	if c.MaxFeatures, err = p.Int("max_features", c.MaxFeatures); err != nil {
		return err
	}
	seed, err := p.Int("random_state", int(c.RandomState))
	if err != nil {
		return err
	}
	c.RandomState = int64(seed)
	return nil
}

func (c *ForestConfig) validate() error {
	if c.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", c.NEstimators)
	}
	if c.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", c.MinSamplesSplit)
	}
	if c.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", c.MinSamplesLeaf)
	}
	return nil
}

// treeSeed derives the seed of tree i (splitmix64 finaliser).
func treeSeed(forestSeed int64, i int) uint64 {
	z := uint64(forestSeed) + uint64(i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// bootstrap draws n row indices with replacement.
func bootstrap(seed uint64, n int) []int {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx
}

// growTrees fits cfg.NEstimators trees concurrently. ctx is checked before
// each tree is started.
func growTrees(ctx context.Context, op string, X *mat.Dense, y []float64, cfg ForestConfig, base tree.Config) ([]*tree.Tree, error) {
	n, _ := X.Dims()
	trees := make([]*tree.Tree, cfg.NEstimators)

	var (
		mu       sync.Mutex
		firstErr error
	)
	record := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	parallel.ParallelizeWithThreshold(cfg.NEstimators, 1, cfg.NJobs, func(start, end int) {
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				record(err)
				return
			}
			seed := treeSeed(cfg.RandomState, i)
			tc := base
			tc.Seed = seed
			t, err := tree.Build(X, y, bootstrap(seed, n), tc)
			if err != nil {
				record(err)
				return
			}
			trees[i] = t
		}
	})

	if firstErr != nil {
		if errors.Is(firstErr, context.Canceled) || errors.Is(firstErr, context.DeadlineExceeded) {
			return nil, firstErr
		}
		return nil, errors.NewModelError(op, "tree build failed", firstErr)
	}
	return trees, nil
}

func featureImportances(trees []*tree.Tree, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	for _, t := range trees {
		for j, v := range t.NormalizedImportances() {
			out[j] += v
		}
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

func sqrtFeatures(nFeatures int) int {
	return int(math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))))
}
