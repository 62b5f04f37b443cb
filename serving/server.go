// Package serving exposes the trained pipeline over HTTP.
//
// The server reads the fitted feature transformer and the final model from
// the artifact store on first use and keeps them until /reload.
package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/dataset"
	"github.com/YuminosukeSato/salescv/pipeline"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/storage"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Sales prediction</title></head>
<body>
<h1>Upload a CSV to predict {{.Target}}</h1>
<form action="/predict" method="post" enctype="multipart/form-data">
<input type="file" name="file" accept=".csv">
<input type="submit" value="Predict">
</form>
</body>
</html>
`))

// PredictRequest is the body of POST /api/predict.
type PredictRequest struct {
	Rows []map[string]interface{} `json:"rows"`
}

// PredictResponse is returned by both predict endpoints.
type PredictResponse struct {
	Predictions []interface{} `json:"predictions"`
	Family      string        `json:"family"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server answers prediction requests.
type Server struct {
	store  storage.Store
	cfg    config.ServeConfig
	logger log.Logger

	m           sync.Mutex
	transformer *pipeline.FeatureTransformer
	model       *pipeline.FinalModel
}

// NewServer creates a server reading artifacts from store.
func NewServer(store storage.Store, cfg config.ServeConfig, logger log.Logger) *Server {
	if logger == nil {
		logger = log.GetLoggerWithName("serving")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.Default().Serve.MaxUploadBytes
	}
	return &Server{store: store, cfg: cfg, logger: logger}
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.HandleIndex).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.HandlePredictUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/predict", s.HandlePredictJSON).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/reload", s.HandleReload).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

// HandleIndex renders the upload form.
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	target := "sales"
	if t, _, err := s.artifacts(r.Context()); err == nil {
		target = t.Target
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, struct{ Target string }{target}); err != nil {
		s.logger.Error("render index", err)
	}
}

// HandleHealth reports whether the model artifacts can be loaded.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_, fm, err := s.artifacts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "family": fm.Family})
}

// HandleReload drops the cached artifacts and loads them again.
func (s *Server) HandleReload(w http.ResponseWriter, r *http.Request) {
	s.m.Lock()
	s.transformer, s.model = nil, nil
	s.m.Unlock()
	s.HandleHealth(w, r)
}

// HandlePredictUpload predicts for the rows of an uploaded CSV file sent
// in the multipart field "file".
func (s *Server) HandlePredictUpload(w http.ResponseWriter, r *http.Request) {
	const op = "serving.PredictUpload"
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.writeError(w, errors.NewConfigurationErrorf(op, "invalid upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, errors.NewConfigurationError(op, "no file part named \"file\""))
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		s.writeError(w, errors.NewConfigurationErrorf(op, "invalid file type %q, only .csv is accepted", header.Filename))
		return
	}

	ds, err := dataset.ReadCSV(file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.predict(w, r, ds)
}

// HandlePredictJSON predicts for rows sent as JSON objects.
func (s *Server) HandlePredictJSON(w http.ResponseWriter, r *http.Request) {
	const op = "serving.PredictJSON"
	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, errors.NewConfigurationErrorf(op, "invalid json: %v", err))
		return
	}
	ds, err := rowsToDataset(req.Rows)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.predict(w, r, ds)
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request, ds *dataset.Dataset) {
	if ds.Len() == 0 {
		s.writeError(w, errors.NewConfigurationError("serving.predict", "no rows to predict"))
		return
	}
	t, fm, err := s.artifacts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	X, err := t.Transform(ds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pred, err := fm.Model.Predict(X)
	if err != nil {
		s.writeError(w, errors.Wrap(err, "predict"))
		return
	}
	n, _ := pred.Dims()
	values := make([]float64, n)
	for i := range values {
		values[i] = pred.At(i, 0)
	}
	out, err := t.DecodePredictions(values)
	if err != nil {
		s.writeError(w, errors.Wrap(err, "decode predictions"))
		return
	}
	s.logger.Info("predicted", log.OperationKey, log.OperationPredict, log.PredsKey, len(out), log.FamilyKey, fm.Family)
	writeJSON(w, http.StatusOK, PredictResponse{Predictions: out, Family: fm.Family})
}

// artifacts returns the cached transformer and model, loading them on
// first use.
func (s *Server) artifacts(ctx context.Context) (*pipeline.FeatureTransformer, *pipeline.FinalModel, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.transformer != nil && s.model != nil {
		return s.transformer, s.model, nil
	}
	t, err := pipeline.LoadTransformer(ctx, s.store)
	if err != nil {
		return nil, nil, err
	}
	fm, err := pipeline.LoadFinalModel(ctx, s.store)
	if err != nil {
		return nil, nil, err
	}
	s.transformer, s.model = t, fm
	s.logger.Info("loaded model", log.FamilyKey, fm.Family, log.SamplesKey, fm.NSamples)
	return t, fm, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsConfiguration(err):
		status = http.StatusBadRequest
	case storage.IsNotFound(err):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", err)
	} else {
		s.logger.Warn("request rejected", err, "status", status)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("error marshaling JSON: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf)
}

// rowsToDataset turns JSON objects into a dataset over the union of their
// keys. A key absent from a row reads as a missing value.
func rowsToDataset(rows []map[string]interface{}) (*dataset.Dataset, error) {
	const op = "serving.rowsToDataset"
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(columns))
		for j, col := range columns {
			switch v := row[col].(type) {
			case nil:
			case string:
				cells[i][j] = v
			case json.Number:
				cells[i][j] = v.String()
			case bool:
				cells[i][j] = strconv.FormatBool(v)
			default:
				return nil, errors.NewConfigurationErrorf(op, "row %d column %q: unsupported value %v", i, col, v)
			}
		}
	}
	return dataset.New(columns, cells)
}
