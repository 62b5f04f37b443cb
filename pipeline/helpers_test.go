package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/dataset"
	"github.com/YuminosukeSato/salescv/storage"
)

var salesColumns = []string{
	"Item_Identifier", "Item_Weight", "Item_Fat_Content", "Item_Visibility", "Item_Type", "Item_MRP",
	"Outlet_Identifier", "Outlet_Establishment_Year", "Outlet_Size", "Outlet_Location_Type", "Outlet_Type",
	"Item_Outlet_Sales",
}

// salesRows generates perOutlet rows for each of nOutlets outlets. Sales
// depend on MRP and an outlet effect, so the learners have signal to find.
func salesRows(nOutlets, perOutlet int, seed uint64) [][]string {
	r := rand.New(rand.NewPCG(seed, seed+1))
	sizes := []string{"Small", "Medium", "High"}
	tiers := []string{"Tier 1", "Tier 2", "Tier 3"}
	types := []string{"Grocery Store", "Supermarket Type1", "Supermarket Type2"}
	items := []string{"Dairy", "Soft Drinks", "Meat", "Fruits"}
	fat := []string{"Low Fat", "Regular"}

	var rows [][]string
	for o := 0; o < nOutlets; o++ {
		outlet := fmt.Sprintf("OUT%03d", o+1)
		year := 1985 + 3*o
		effect := float64(o%3) * 400
		for i := 0; i < perOutlet; i++ {
			mrp := 30 + r.Float64()*220
			weight := strconv.FormatFloat(5+r.Float64()*15, 'f', 2, 64)
			if r.IntN(10) == 0 {
				weight = ""
			}
			size := sizes[o%3]
			if o == 4 {
				size = ""
			}
			sales := 12*mrp + effect + r.NormFloat64()*50
			rows = append(rows, []string{
				fmt.Sprintf("FD%s%02d", outlet[3:], i),
				weight,
				fat[r.IntN(2)],
				strconv.FormatFloat(r.Float64()*0.2, 'f', 4, 64),
				items[r.IntN(len(items))],
				strconv.FormatFloat(mrp, 'f', 2, 64),
				outlet,
				strconv.Itoa(year),
				size,
				tiers[o%3],
				types[(o+1)%3],
				strconv.FormatFloat(sales, 'f', 2, 64),
			})
		}
	}
	return rows
}

func salesDataset(t *testing.T, nOutlets, perOutlet int) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(append([]string(nil), salesColumns...), salesRows(nOutlets, perOutlet, 7))
	require.NoError(t, err)
	return ds
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Kind: config.StoreMemory}
	cfg.CrossVal = config.CrossValConfig{K: 5, Workers: 2}
	cfg.Search = config.SearchConfig{
		Strategy: config.StrategyGrid,
		Families: map[string]map[string][]interface{}{
			"decision_tree": {"max_depth": {2, 4}},
			"ridge":         {"alpha": {0.1, 10.0}},
		},
	}
	return cfg
}

// recordingStore remembers the order of writes.
type recordingStore struct {
	*storage.MemoryStore
	mu   sync.Mutex
	puts []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *recordingStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	s.puts = append(s.puts, key)
	s.mu.Unlock()
	return s.MemoryStore.Put(ctx, key, data)
}

func (s *recordingStore) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

// registerFamily adds a family for the duration of the test.
func registerFamily(t *testing.T, f Family) {
	t.Helper()
	families[f.Name] = f
	t.Cleanup(func() { delete(families, f.Name) })
}
