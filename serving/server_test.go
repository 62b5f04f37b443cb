package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/dataset"
	"github.com/YuminosukeSato/salescv/pipeline"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/storage"
)

const header = "Item_Identifier,Item_Weight,Item_Fat_Content,Item_Visibility,Item_Type,Item_MRP,Outlet_Identifier,Outlet_Establishment_Year,Outlet_Size,Outlet_Location_Type,Outlet_Type,Item_Outlet_Sales\n"

var trainRows = []string{
	"FDA15,9.3,Low Fat,0.016,Dairy,249.8,OUT049,1999,Medium,Tier 1,Supermarket Type1,3735.1",
	"DRC01,5.92,Regular,0.019,Soft Drinks,48.3,OUT018,2009,Medium,Tier 3,Supermarket Type2,443.4",
	"FDN15,17.5,Low Fat,0.017,Meat,141.6,OUT049,1999,Medium,Tier 1,Supermarket Type1,2097.3",
	"FDX07,19.2,Regular,0,Fruits,182.1,OUT010,1998,,Tier 3,Grocery Store,732.4",
	"NCD19,8.93,Low Fat,0,Household,53.9,OUT013,1987,High,Tier 3,Supermarket Type1,994.7",
	"FDP36,10.4,Regular,0,Baking Goods,51.4,OUT018,2009,Medium,Tier 3,Supermarket Type2,556.6",
	"FDO10,13.7,Regular,0.013,Snack Foods,57.7,OUT013,1987,High,Tier 3,Supermarket Type1,343.6",
	"FDP10,,Low Fat,0.127,Snack Foods,107.8,OUT027,1985,Medium,Tier 3,Supermarket Type3,4022.8",
}

// trainedStore fits a ridge model on the fixture and stores the artifacts
// the server reads.
func trainedStore(t *testing.T) storage.Store {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(header + strings.Join(trainRows, "\n")))
	require.NoError(t, err)

	cfg := config.Default()
	fs, tr, err := pipeline.BuildFeatureSet(cfg, ds)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, pipeline.SaveTransformer(ctx, store, tr))
	_, err = pipeline.NewFinalTrainer(store, cfg).TrainFinal(ctx, pipeline.Selection{Family: "ridge"}, fs)
	require.NoError(t, err)
	return store
}

func newTestServer(t *testing.T, store storage.Store) (*Server, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return NewServer(store, config.Default().Serve, logger), logger
}

func upload(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodePredictions(t *testing.T, rec *httptest.ResponseRecorder) PredictResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPredictUpload(t *testing.T) {
	s, logger := newTestServer(t, trainedStore(t))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, upload(t, "batch.csv", header+strings.Join(trainRows[:3], "\n")))

	resp := decodePredictions(t, rec)
	assert.Len(t, resp.Predictions, 3)
	assert.Equal(t, "ridge", resp.Family)
	for _, p := range resp.Predictions {
		assert.IsType(t, float64(0), p)
	}
	assert.True(t, logger.ContainsMessage("predicted"))
}

func TestPredictUploadRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t, trainedStore(t))
	tests := map[string]*http.Request{
		"wrong extension": upload(t, "batch.xlsx", header+trainRows[0]),
		"header only":     upload(t, "batch.csv", header),
		"missing column":  upload(t, "batch.csv", "Item_Weight,Item_MRP\n9.3,249.8\n"),
		"non-numeric":     upload(t, "batch.csv", header+strings.Replace(trainRows[0], "249.8", "cheap", 1)),
		"no file":         httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("")),
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestPredictJSON(t *testing.T) {
	s, _ := newTestServer(t, trainedStore(t))
	body := `{"rows":[
		{"Item_Weight": 9.3, "Item_Fat_Content": "Low Fat", "Item_Visibility": 0.016, "Item_Type": "Dairy",
		 "Item_MRP": 249.8, "Outlet_Identifier": "OUT049", "Outlet_Establishment_Year": 1999,
		 "Outlet_Size": "Medium", "Outlet_Location_Type": "Tier 1", "Outlet_Type": "Supermarket Type1"},
		{"Item_Weight": null, "Item_Fat_Content": "Regular", "Item_Visibility": 0, "Item_Type": "Breads",
		 "Item_MRP": 99.5, "Outlet_Identifier": "OUT999", "Outlet_Establishment_Year": 2004,
		 "Outlet_Size": "Small", "Outlet_Location_Type": "Tier 2", "Outlet_Type": "Grocery Store"}
	]}`
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body)))
	resp := decodePredictions(t, rec)
	assert.Len(t, resp.Predictions, 2)

	for name, bad := range map[string]string{
		"malformed": `{"rows":`,
		"empty":     `{"rows":[]}`,
		"nested":    `{"rows":[{"Item_MRP": {"value": 1}}]}`,
	} {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(bad)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestPredictJSONRejectsNonFinite(t *testing.T) {
	s, logger := newTestServer(t, trainedStore(t))
	for _, weight := range []string{`"Inf"`, `"+Inf"`, `"-infinity"`, `1e400`} {
		body := `{"rows":[{"Item_Weight": ` + weight + `, "Item_Fat_Content": "Low Fat", "Item_Visibility": 0.016,
			"Item_Type": "Dairy", "Item_MRP": 249.8, "Outlet_Identifier": "OUT049", "Outlet_Establishment_Year": 1999,
			"Outlet_Size": "Medium", "Outlet_Location_Type": "Tier 1", "Outlet_Type": "Supermarket Type1"}]}`
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%s: %s", weight, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "Item_Weight", weight)
	}
	assert.False(t, logger.ContainsMessage("predicted"))
}

func TestHealthAndReload(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryStore())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.store = trainedStore(t)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ridge")
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t, trainedStore(t))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="file"`)
	assert.Contains(t, rec.Body.String(), "Item_Outlet_Sales")

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
