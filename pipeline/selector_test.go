package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/storage"
)

func putFold(t *testing.T, store storage.Store, id int, family string, score float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, storage.PutJSON(ctx, store, FoldKey(id, "params"), map[string]interface{}{
		"family": family,
		"alpha":  float64(id),
	}))
	require.NoError(t, storage.PutJSON(ctx, store, FoldKey(id, "metrics"), FoldMetrics{
		FoldID: id,
		Family: family,
		Report: Report{Metric: "neg_mean_squared_error", Score: score},
	}))
}

func newTestSelector(store storage.Store, k int) (*Selector, *log.TestLogger) {
	s := NewSelector(store, k)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	s.Logger = logger
	return s, logger
}

func TestSelectBest(t *testing.T) {
	store := storage.NewMemoryStore()
	putFold(t, store, 1, "ridge", -40)
	putFold(t, store, 2, "ridge", -12.5)
	putFold(t, store, 3, "decision_tree", -30)

	s, _ := newTestSelector(store, 3)
	sel, err := s.SelectBest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sel.FoldID)
	assert.Equal(t, "ridge", sel.Family)
	assert.Equal(t, -12.5, sel.Score)
	assert.Equal(t, 2.0, sel.Params["alpha"])
	assert.NotContains(t, sel.Params, "family")

	var stored Selection
	require.NoError(t, storage.GetJSON(context.Background(), store, KeySelection, &stored))
	assert.Equal(t, 2, stored.FoldID)
}

func TestSelectBestTieGoesToLowestFold(t *testing.T) {
	store := storage.NewMemoryStore()
	putFold(t, store, 1, "ridge", -20)
	putFold(t, store, 2, "decision_tree", -10)
	putFold(t, store, 3, "ridge", -10)

	s, _ := newTestSelector(store, 3)
	sel, err := s.SelectBest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sel.FoldID)
}

func TestSelectBestIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	for id := 1; id <= 5; id++ {
		putFold(t, store, id, "ridge", float64(-id*id%7))
	}
	s, _ := newTestSelector(store, 5)
	a, err := s.SelectBest(context.Background())
	require.NoError(t, err)
	b, err := s.SelectBest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSelectBestSkipsBrokenFolds(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	putFold(t, store, 1, "ridge", -50)
	putFold(t, store, 2, "ridge", -1)
	require.NoError(t, store.Put(ctx, FoldKey(2, "metrics"), []byte("{truncated")))
	putFold(t, store, 3, "ridge", -2)
	store.Delete(FoldKey(3, "params"))
	require.NoError(t, storage.PutJSON(ctx, store, FoldKey(4, "params"), map[string]interface{}{"family": "ridge"}))
	putFold(t, store, 5, "ridge", -3)
	require.NoError(t, storage.PutJSON(ctx, store, FoldKey(5, "params"), map[string]interface{}{"alpha": 1}))

	s, logger := newTestSelector(store, 5)
	sel, err := s.SelectBest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sel.FoldID)
	assert.True(t, logger.ContainsMessage("skipping fold"))
	assert.True(t, logger.ContainsField(log.FoldKey, 2.0))
}

func TestSelectBestSkipsOtherRuns(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	putFold(t, store, 1, "ridge", -5)
	putFold(t, store, 2, "ridge", -30)
	require.NoError(t, storage.PutJSON(ctx, store, FoldKey(2, "metrics"), FoldMetrics{
		FoldID: 2, RunID: "current", Family: "ridge",
		Report: Report{Metric: "neg_mean_squared_error", Score: -30},
	}))

	s, logger := newTestSelector(store, 2)
	s.RunID = "current"
	sel, err := s.SelectBest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sel.FoldID, "fold 1 is left over from an earlier run")
	assert.True(t, logger.ContainsField(log.FoldKey, 1.0))

	s.RunID = ""
	sel, err = s.SelectBest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sel.FoldID)
}

func TestSelectBestNoCandidates(t *testing.T) {
	store := storage.NewMemoryStore()
	s, _ := newTestSelector(store, 3)
	_, err := s.SelectBest(context.Background())
	assert.True(t, errors.IsNoCandidates(err))

	require.NoError(t, store.Put(context.Background(), FoldKey(1, "metrics"), []byte("not json")))
	_, err = s.SelectBest(context.Background())
	assert.True(t, errors.IsNoCandidates(err))

	ok, _ := store.Exists(context.Background(), KeySelection)
	assert.False(t, ok)
}
