package pipeline

import (
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/sklearn/model_selection"
)

// SplitResult is the outcome of the two-level split: a held-out test split
// and K folds over the train split. Fold indices are rows of Train.
type SplitResult struct {
	Train *FeatureSet
	Test  *FeatureSet
	Folds []model_selection.Fold
}

// Splitter builds the test split and the cross-validation folds. With
// Grouped set, rows sharing a group id never straddle a boundary; without it
// every row is its own group and a shuffled KFold is used.
type Splitter struct {
	Seed    uint64
	Grouped bool
}

// NewSplitter creates a splitter.
func NewSplitter(seed uint64, grouped bool) *Splitter {
	return &Splitter{Seed: seed, Grouped: grouped}
}

// Split partitions fs. The validation side of the first outer fold is the
// test split, so the test split holds about 1/k of the rows.
func (s *Splitter) Split(fs *FeatureSet, k int) (*SplitResult, error) {
	const op = "Splitter.Split"
	if fs == nil {
		return nil, errors.NewConfigurationError(op, "feature set is nil")
	}
	if k < 2 {
		return nil, errors.NewConfigurationErrorf(op, "k must be >= 2, got %d", k)
	}
	if err := fs.check(op); err != nil {
		return nil, err
	}

	outer, err := s.folds(fs, k)
	if err != nil {
		return nil, errors.Wrap(err, "outer split")
	}
	test := fs.Subset(outer[0].ValidationIndices)
	train := fs.Subset(outer[0].TrainIndices)

	inner, err := s.folds(train, k)
	if err != nil {
		return nil, errors.Wrap(err, "inner split")
	}
	return &SplitResult{Train: train, Test: test, Folds: inner}, nil
}

func (s *Splitter) folds(fs *FeatureSet, k int) ([]model_selection.Fold, error) {
	if !s.Grouped {
		return model_selection.NewKFold(k, true, s.Seed).Split(fs.Len())
	}
	return model_selection.NewGroupKFold(k, s.Seed).Split(fs.Groups)
}
