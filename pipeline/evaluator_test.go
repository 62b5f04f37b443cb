package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/storage"
)

func finalModel(t *testing.T, cfg config.Config, store storage.Store, family string, params model.Params) *SplitResult {
	t.Helper()
	fs, _, err := BuildFeatureSet(cfg, salesDataset(t, 8, 6))
	require.NoError(t, err)
	split, err := NewSplitter(cfg.Run.Seed, true).Split(fs, 4)
	require.NoError(t, err)
	_, err = NewFinalTrainer(store, cfg).TrainFinal(context.Background(), Selection{Family: family, Params: params}, split.Train)
	require.NoError(t, err)
	return split
}

func TestEvaluateRegression(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	split := finalModel(t, testConfig(), store, "ridge", model.Params{"alpha": 1.0})
	fm, err := LoadFinalModel(ctx, store)
	require.NoError(t, err)

	ev := NewEvaluator(store)
	report, err := ev.Evaluate(ctx, fm, split.Test)
	require.NoError(t, err)
	assert.Equal(t, "neg_mean_squared_error", report.Metric)
	require.NotNil(t, report.Regression)
	assert.Equal(t, -report.Regression.MSE, report.Score)
	assert.Greater(t, report.Regression.R2, 0.5)
	assert.Equal(t, split.Test.RowIDs, report.TestRows)
	assert.Equal(t, split.Train.Len(), report.TrainRows)

	first, err := store.Get(ctx, KeyEvalReport)
	require.NoError(t, err)
	png, err := store.Get(ctx, KeyEvalPlot)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	again, err := ev.Evaluate(ctx, fm, split.Test)
	require.NoError(t, err)
	assert.Equal(t, report, again)
	second, err := store.Get(ctx, KeyEvalReport)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateClassification(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cfg := classificationConfig()
	split := finalModel(t, cfg, store, "decision_tree", model.Params{"max_depth": 3, "criterion": "gini"})
	fm, err := LoadFinalModel(ctx, store)
	require.NoError(t, err)

	report, err := NewEvaluator(store).Evaluate(ctx, fm, split.Test)
	require.NoError(t, err)
	assert.Equal(t, "macro_f1", report.Metric)
	require.NotNil(t, report.Classification)
	assert.Nil(t, report.Regression)
	assert.Equal(t, report.Classification.MacroAvg.F1, report.Score)

	ok, err := store.Exists(ctx, KeyEvalPlot)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateRejectsEmptyInput(t *testing.T) {
	ev := NewEvaluator(storage.NewMemoryStore())
	_, err := ev.Evaluate(context.Background(), nil, &FeatureSet{})
	assert.True(t, errors.IsConfiguration(err))
}
