package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/salescv/pkg/errors"
)

func groupSet(groups []string, rows []int) map[string]bool {
	out := make(map[string]bool)
	for _, r := range rows {
		out[groups[r]] = true
	}
	return out
}

func TestSplitProperties(t *testing.T) {
	fs, _, err := BuildFeatureSet(testConfig(), salesDataset(t, 10, 10))
	require.NoError(t, err)

	split, err := NewSplitter(42, true).Split(fs, 5)
	require.NoError(t, err)
	require.Len(t, split.Folds, 5)

	assert.Equal(t, fs.Len(), split.Train.Len()+split.Test.Len())
	assert.InDelta(t, fs.Len()/5, split.Test.Len(), 10)

	seen := make(map[int]bool)
	for _, id := range append(append([]int(nil), split.Train.RowIDs...), split.Test.RowIDs...) {
		assert.False(t, seen[id], "row %d in both splits", id)
		seen[id] = true
	}

	testGroups := make(map[string]bool)
	for _, g := range split.Test.Groups {
		testGroups[g] = true
	}
	for _, g := range split.Train.Groups {
		assert.False(t, testGroups[g], "group %s straddles test and train", g)
	}

	covered := make([]int, split.Train.Len())
	for i, f := range split.Folds {
		assert.Equal(t, i+1, f.ID)
		for _, r := range f.ValidationIndices {
			covered[r]++
		}
		train := groupSet(split.Train.Groups, f.TrainIndices)
		for g := range groupSet(split.Train.Groups, f.ValidationIndices) {
			assert.False(t, train[g], "fold %d: group %s on both sides", f.ID, g)
			assert.False(t, testGroups[g])
		}
		assert.Equal(t, split.Train.Len(), len(f.TrainIndices)+len(f.ValidationIndices))
	}
	for r, n := range covered {
		assert.Equal(t, 1, n, "train row %d validated %d times", r, n)
	}
}

func TestSplitDeterministic(t *testing.T) {
	fs, _, err := BuildFeatureSet(testConfig(), salesDataset(t, 10, 4))
	require.NoError(t, err)

	a, err := NewSplitter(3, true).Split(fs, 3)
	require.NoError(t, err)
	b, err := NewSplitter(3, true).Split(fs, 3)
	require.NoError(t, err)
	assert.Equal(t, a.Test.RowIDs, b.Test.RowIDs)
	assert.Equal(t, a.Folds, b.Folds)
}

func TestSplitUngrouped(t *testing.T) {
	fs, _, err := BuildFeatureSet(testConfig(), salesDataset(t, 2, 10))
	require.NoError(t, err)

	split, err := NewSplitter(1, false).Split(fs, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, split.Test.Len())
	assert.Len(t, split.Folds, 4)
}

func TestSplitInvalid(t *testing.T) {
	fs, _, err := BuildFeatureSet(testConfig(), salesDataset(t, 10, 3))
	require.NoError(t, err)
	s := NewSplitter(42, true)

	_, err = s.Split(fs, 1)
	assert.True(t, errors.IsConfiguration(err))

	_, err = s.Split(fs, 11)
	assert.True(t, errors.IsConfiguration(err), "k above the group count")

	// k equal to the group count leaves k-1 groups for the inner split
	_, err = s.Split(fs, 10)
	assert.True(t, errors.IsConfiguration(err))

	_, err = s.Split(&FeatureSet{}, 2)
	assert.True(t, errors.IsConfiguration(err))

	bad := fs.Subset([]int{0, 1, 2, 3})
	bad.Groups[2] = ""
	_, err = s.Split(bad, 2)
	assert.True(t, errors.IsConfiguration(err))
}
