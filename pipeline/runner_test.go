package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/dataset"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/storage"
)

func statusOf(t *testing.T, store storage.Store, stage string) string {
	t.Helper()
	data, err := store.Get(context.Background(), StatusKey(stage))
	require.NoError(t, err)
	return string(data)
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r, err := NewRunner(testConfig(), store)
	require.NoError(t, err)

	report, err := r.RunDataset(ctx, salesDataset(t, 10, 10))
	require.NoError(t, err)

	var bestScore float64
	for id := 1; id <= 5; id++ {
		for _, name := range []string{"model", "params", "metrics"} {
			ok, err := store.Exists(ctx, FoldKey(id, name))
			require.NoError(t, err)
			assert.True(t, ok, FoldKey(id, name))
		}
		var fm FoldMetrics
		require.NoError(t, storage.GetJSON(ctx, store, FoldKey(id, "metrics"), &fm))
		assert.Equal(t, r.Status.RunID, fm.RunID)
		if id == 1 || fm.Score > bestScore {
			bestScore = fm.Score
		}
	}
	for _, name := range []string{"model", "params", "metrics"} {
		ok, err := store.Exists(ctx, FoldKey(6, name))
		require.NoError(t, err)
		assert.False(t, ok, "exactly five folds: %s", FoldKey(6, name))
	}
	for _, key := range []string{KeyTransformer, KeySplitTrain, KeySplitTest, KeySplitFolds, KeySelection,
		KeyFinalModel, KeyFinalParams, KeyEvalReport, KeyEvalPlot, KeyValidationReport} {
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
	for _, stage := range []string{StageValidate, StageFeaturize, StageCrossVal, StageFinal, StageEvaluation} {
		status := statusOf(t, store, stage)
		assert.True(t, strings.HasPrefix(status, stage+" status: success"), status)
		assert.Contains(t, status, r.Status.RunID)
	}

	split, err := r.LoadSplit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, split.Train.Len()+split.Test.Len())
	assert.Equal(t, split.Test.RowIDs, report.TestRows)
	train := make(map[int]bool)
	for _, id := range split.Train.RowIDs {
		train[id] = true
	}
	for _, id := range report.TestRows {
		assert.False(t, train[id], "test row %d was used for training", id)
	}

	fm, err := LoadFinalModel(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, split.Train.Len(), fm.NSamples)

	sel, err := r.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, sel.Family, fm.Family)
	assert.Equal(t, bestScore, sel.Score)

	var stored Selection
	require.NoError(t, storage.GetJSON(ctx, store, KeySelection, &stored))
	assert.Equal(t, bestScore, stored.Score)
}

func TestRunFromCSV(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "raw", "sales.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0o755))
	f, err := os.Create(source)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(salesColumns))
	require.NoError(t, w.WriteAll(salesRows(6, 5, 3)))
	require.NoError(t, f.Close())

	cfg := testConfig()
	cfg.Data.Source = source
	cfg.Data.IngestDir = filepath.Join(dir, "ingested")
	cfg.CrossVal.K = 2
	cfg.Store = config.StoreConfig{Kind: config.StoreFile, Root: filepath.Join(dir, "artifacts")}
	store, err := storage.Open(cfg.Store)
	require.NoError(t, err)

	r, err := NewRunner(cfg, store)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "ingested", "sales.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "artifacts", "final", "model"))
	assert.NoError(t, err)
	assert.Contains(t, statusOf(t, store, StageIngest), "success")
}

func TestRunStagesSeparately(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cfg := testConfig()
	cfg.CrossVal.K = 3

	r, err := NewRunner(cfg, store)
	require.NoError(t, err)
	_, err = r.Featurize(ctx, salesDataset(t, 9, 4))
	require.NoError(t, err)

	// a later process picks the state up from the store
	r2, err := NewRunner(cfg, store)
	require.NoError(t, err)
	split, err := r2.LoadSplit(ctx)
	require.NoError(t, err)
	sel, err := r2.CrossValidate(ctx, split)
	require.NoError(t, err)
	fm, err := r2.TrainFinal(ctx, sel, split.Train)
	require.NoError(t, err)
	_, err = r2.Evaluate(ctx, fm, split.Test)
	require.NoError(t, err)
}

func TestRunClassification(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := classificationConfig()
	cfg.CrossVal.K = 3
	r, err := NewRunner(cfg, store)
	require.NoError(t, err)

	report, err := r.RunDataset(context.Background(), salesDataset(t, 9, 6))
	require.NoError(t, err)
	assert.Equal(t, "macro_f1", report.Metric)
	assert.NotNil(t, report.Classification)
}

func TestRunValidationFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	r, err := NewRunner(testConfig(), store)
	require.NoError(t, err)

	ds, err := dataset.New([]string{"Item_Identifier", "Item_Outlet_Sales"}, [][]string{{"FD01", "10"}})
	require.NoError(t, err)
	_, err = r.RunDataset(context.Background(), ds)
	assert.True(t, errors.IsConfiguration(err))

	status := statusOf(t, store, StageValidate)
	assert.Contains(t, status, "data_validation status: failure")
	assert.Contains(t, status, "missing required columns")

	var report dataset.ValidationReport
	require.NoError(t, storage.GetJSON(context.Background(), store, KeyValidationReport, &report))
	assert.False(t, report.Passed)
	assert.Contains(t, report.MissingColumns, "Item_MRP")
}

func TestRunFoldFailuresAreTolerated(t *testing.T) {
	registerFamily(t, stubFamily("failing", "fail"))

	store := storage.NewMemoryStore()
	cfg := testConfig()
	cfg.Search.Families = map[string]map[string][]interface{}{"failing": {}}
	r, err := NewRunner(cfg, store)
	require.NoError(t, err)

	_, err = r.RunDataset(context.Background(), salesDataset(t, 10, 3))
	assert.True(t, errors.IsNoCandidates(err), "%v", err)
	assert.Contains(t, statusOf(t, store, StageCrossVal), "failure")
}

func TestCrossValidateIgnoresEarlierRuns(t *testing.T) {
	registerFamily(t, stubFamily("failing", "fail"))

	ctx := context.Background()
	store := storage.NewMemoryStore()
	cfg := testConfig()
	cfg.CrossVal.K = 3
	first, err := NewRunner(cfg, store)
	require.NoError(t, err)
	_, err = first.RunDataset(ctx, salesDataset(t, 9, 4))
	require.NoError(t, err)

	cfg.Search.Families = map[string]map[string][]interface{}{"failing": {}}
	second, err := NewRunner(cfg, store)
	require.NoError(t, err)
	split, err := second.LoadSplit(ctx)
	require.NoError(t, err)
	_, err = second.CrossValidate(ctx, split)
	assert.True(t, errors.IsNoCandidates(err), "%v", err)

	ok, err := store.Exists(ctx, FoldKey(1, "metrics"))
	require.NoError(t, err)
	assert.True(t, ok, "the earlier run's fold is still stored")
}

func TestNewRunnerRejectsFamilies(t *testing.T) {
	cfg := classificationConfig()
	cfg.Search.Families = map[string]map[string][]interface{}{"ridge": {"alpha": {1.0}}}
	_, err := NewRunner(cfg, storage.NewMemoryStore())
	assert.True(t, errors.IsConfiguration(err))

	cfg = testConfig()
	cfg.Search.Families = map[string]map[string][]interface{}{"xgboost": {}}
	_, err = NewRunner(cfg, storage.NewMemoryStore())
	assert.True(t, errors.IsConfiguration(err))
}
