// Package model_selection provides fold splitters and hyperparameter
// search spaces.
//
// All splitters are deterministic for a fixed seed and input. Fold ids are
// 1-based so that they match the artifact keys fold_1 … fold_K.
package model_selection

import (
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// Fold is one train/validation partition. Indices are row positions of the
// set that was split, sorted ascending.
type Fold struct {
	ID                int   `json:"id"`
	TrainIndices      []int `json:"train_indices"`
	ValidationIndices []int `json:"validation_indices"`
}

// KFold splits rows into NSplits contiguous (optionally shuffled) folds.
type KFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewKFold creates a k-fold splitter.
func NewKFold(nSplits int, shuffle bool, seed uint64) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, Seed: seed}
}

// Split partitions n rows. The first n%k folds get one extra row.
func (kf *KFold) Split(n int) ([]Fold, error) {
	const op = "KFold.Split"
	if kf.NSplits < 2 {
		return nil, errors.NewConfigurationErrorf(op, "n_splits must be >= 2, got %d", kf.NSplits)
	}
	if n < kf.NSplits {
		return nil, errors.NewConfigurationErrorf(op, "cannot split %d rows into %d folds", n, kf.NSplits)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := newRand(kf.Seed)
		r.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assign := make([]int, n)
	foldSize, remainder := n/kf.NSplits, n%kf.NSplits
	pos := 0
	for f := 0; f < kf.NSplits; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		for _, idx := range indices[pos : pos+size] {
			assign[idx] = f
		}
		pos += size
	}
	return buildFolds(assign, kf.NSplits), nil
}

// GroupKFold splits rows so that every group lands in exactly one
// validation set.
//
// Groups are shuffled with the seed, then stable-sorted by size (largest
// first), then each group is placed in the fold currently holding the
// fewest rows, ties going to the lowest fold index. The shuffle only
// decides the order among equally sized groups.
type GroupKFold struct {
	NSplits int
	Seed    uint64
}

// NewGroupKFold creates a grouped k-fold splitter.
func NewGroupKFold(nSplits int, seed uint64) *GroupKFold {
	return &GroupKFold{NSplits: nSplits, Seed: seed}
}

// Split partitions rows by their group ids. groups[i] is the group of row i.
func (g *GroupKFold) Split(groups []string) ([]Fold, error) {
	const op = "GroupKFold.Split"
	if g.NSplits < 2 {
		return nil, errors.NewConfigurationErrorf(op, "n_splits must be >= 2, got %d", g.NSplits)
	}
	if len(groups) == 0 {
		return nil, errors.NewConfigurationError(op, "no rows to split")
	}

	// 出現順にグループを列挙する
	var order []string
	sizes := make(map[string]int)
	for _, grp := range groups {
		if _, seen := sizes[grp]; !seen {
			order = append(order, grp)
		}
		sizes[grp]++
	}
	if g.NSplits > len(order) {
		return nil, errors.NewConfigurationErrorf(op,
			"n_splits=%d exceeds the number of distinct groups (%d)", g.NSplits, len(order))
	}

	r := newRand(g.Seed)
	r.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	sort.SliceStable(order, func(i, j int) bool {
		return sizes[order[i]] > sizes[order[j]]
	})

	foldOf := make(map[string]int, len(order))
	load := make([]int, g.NSplits)
	for _, grp := range order {
		best := 0
		for f := 1; f < g.NSplits; f++ {
			if load[f] < load[best] {
				best = f
			}
		}
		foldOf[grp] = best
		load[best] += sizes[grp]
	}

	assign := make([]int, len(groups))
	for i, grp := range groups {
		assign[i] = foldOf[grp]
	}
	return buildFolds(assign, g.NSplits), nil
}

// NGroups returns the number of distinct group ids.
func NGroups(groups []string) int {
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		seen[g] = struct{}{}
	}
	return len(seen)
}

// buildFolds turns a row→fold assignment into k folds with sorted indices.
func buildFolds(assign []int, k int) []Fold {
	folds := make([]Fold, k)
	for f := range folds {
		folds[f].ID = f + 1
	}
	for i, f := range assign {
		for j := range folds {
			if j == f {
				folds[j].ValidationIndices = append(folds[j].ValidationIndices, i)
			} else {
				folds[j].TrainIndices = append(folds[j].TrainIndices, i)
			}
		}
	}
	return folds
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
}
