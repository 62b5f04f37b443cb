package pipeline

import (
	"context"
	"encoding/json"
	"math"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/storage"
)

// Selection names the winning fold candidate. It is a template for the
// final refit, not a deployable model.
type Selection struct {
	FoldID int          `json:"fold_id"`
	Family string       `json:"family"`
	Params model.Params `json:"params"`
	Metric string       `json:"metric"`
	Score  float64      `json:"score"`
}

// Selector picks the best fold candidate from persisted fold reports.
type Selector struct {
	Store storage.Store
	K     int
	// RunID, when set, restricts selection to folds written by that run.
	RunID  string
	Logger log.Logger
}

// NewSelector creates a selector probing folds 1..k.
func NewSelector(store storage.Store, k int) *Selector {
	return &Selector{Store: store, K: k, Logger: log.GetLoggerWithName("pipeline.selector")}
}

// SelectBest reads every fold's metrics and params from the store and
// returns the candidate with the strictly largest score; ties go to the
// lowest fold id. Folds whose artifacts are missing, unreadable or left
// over from another run are skipped with a warning. The result is written to selection/best.
func (s *Selector) SelectBest(ctx context.Context) (*Selection, error) {
	const op = "Selector.SelectBest"
	var best *Selection
	for id := 1; id <= s.K; id++ {
		sel, err := s.readFold(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.Logger.Warn("skipping fold", err, log.FoldKey, id)
			continue
		}
		if best == nil || sel.Score > best.Score {
			best = sel
		}
	}
	if best == nil {
		return nil, errors.NewNoCandidatesError(op, "no fold has a usable candidate")
	}
	if err := storage.PutJSON(ctx, s.Store, KeySelection, best); err != nil {
		return nil, err
	}
	s.Logger.Info("selected candidate",
		log.FoldKey, best.FoldID,
		log.FamilyKey, best.Family,
		log.MetricKey, best.Metric,
		log.ScoreKey, best.Score,
	)
	return best, nil
}

func (s *Selector) readFold(ctx context.Context, id int) (*Selection, error) {
	var fm FoldMetrics
	if err := storage.GetJSON(ctx, s.Store, FoldKey(id, artifactMetrics), &fm); err != nil {
		return nil, err
	}
	if s.RunID != "" && fm.RunID != s.RunID {
		return nil, errors.Newf("fold %d metrics belong to run %q, not %q", id, fm.RunID, s.RunID)
	}
	if math.IsNaN(fm.Score) || math.IsInf(fm.Score, 0) {
		return nil, errors.Newf("fold %d has a non-finite score", id)
	}

	raw, err := s.Store.Get(ctx, FoldKey(id, artifactParams))
	if err != nil {
		return nil, err
	}
	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, errors.NewIOError("Selector.readFold", FoldKey(id, artifactParams), err)
	}
	family, _ := flat["family"].(string)
	if family == "" {
		return nil, errors.Newf("fold %d params carry no family", id)
	}
	delete(flat, "family")

	return &Selection{
		FoldID: id,
		Family: family,
		Params: model.Params(flat),
		Metric: fm.Metric,
		Score:  fm.Score,
	}, nil
}
