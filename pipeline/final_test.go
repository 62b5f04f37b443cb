package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/storage"
)

// trainedSplit runs the split and every fold into store.
func trainedSplit(t *testing.T, store storage.Store) *SplitResult {
	t.Helper()
	cfg := testConfig()
	fs, _, err := BuildFeatureSet(cfg, salesDataset(t, 10, 6))
	require.NoError(t, err)
	split, err := NewSplitter(cfg.Run.Seed, true).Split(fs, 3)
	require.NoError(t, err)

	tr, _ := newTestTrainer(store, cfg.Search.Families)
	for _, fold := range split.Folds {
		_, err := tr.TrainFold(context.Background(), fold, split.Train.X, split.Train.Y)
		require.NoError(t, err)
	}
	return split
}

func TestTrainFinalRefitsFromScratch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	split := trainedSplit(t, store)

	sel, err := NewSelector(store, 3).SelectBest(ctx)
	require.NoError(t, err)

	ft := NewFinalTrainer(store, testConfig())
	fm, err := ft.TrainFinal(ctx, *sel, split.Train)
	require.NoError(t, err)
	assert.Equal(t, split.Train.Len(), fm.NSamples)
	assert.Equal(t, sel.Family, fm.Family)
	assert.True(t, fm.Model.IsFitted())

	final, err := store.Get(ctx, KeyFinalModel)
	require.NoError(t, err)
	for id := 1; id <= 3; id++ {
		fold, err := store.Get(ctx, FoldKey(id, "model"))
		require.NoError(t, err)
		assert.False(t, bytes.Equal(final, fold), "final model equals fold %d model", id)
	}

	loaded, err := LoadFinalModel(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, fm.Family, loaded.Family)
	assert.Equal(t, fm.NSamples, loaded.NSamples)
	want, err := fm.Model.Predict(split.Test.X)
	require.NoError(t, err)
	got, err := loaded.Model.Predict(split.Test.X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-9))

	var params map[string]interface{}
	require.NoError(t, storage.GetJSON(ctx, store, KeyFinalParams, &params))
	assert.Equal(t, sel.Family, params["family"])
}

func TestTrainFinalRejectsBadSelection(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	fs, _, err := BuildFeatureSet(testConfig(), salesDataset(t, 3, 5))
	require.NoError(t, err)
	ft := NewFinalTrainer(store, testConfig())

	tests := map[string]Selection{
		"unknown family": {Family: "gradient_boosting"},
		"unknown key":    {Family: "ridge", Params: model.Params{"l1_ratio": 0.5}},
		"wrong type":     {Family: "ridge", Params: model.Params{"alpha": "large"}},
		"fractional int": {Family: "decision_tree", Params: model.Params{"max_depth": 2.5}},
	}
	for name, sel := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ft.TrainFinal(ctx, sel, fs)
			assert.True(t, errors.IsTraining(err), "%v", err)
		})
	}
	ok, _ := store.Exists(ctx, KeyFinalModel)
	assert.False(t, ok)
}

func TestLoadFinalModelRejectsFoldEnvelope(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	trainedSplit(t, store)

	fold, err := store.Get(ctx, FoldKey(1, "model"))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, KeyFinalModel, fold))
	_, err = LoadFinalModel(ctx, store)
	assert.True(t, errors.IsIO(err))
}
