package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/salescv/storage"
)

// Stage names, used for status markers and the pipeline.stage log field.
const (
	StageIngest     = "data_ingestion"
	StageValidate   = "data_validation"
	StageFeaturize  = "data_transformation"
	StageCrossVal   = "cross_val"
	StageFinal      = "final_train"
	StageEvaluation = "evaluation"
)

// StatusWriter records the outcome of each stage under status/<stage>.
type StatusWriter struct {
	Store storage.Store
	RunID string
	now   func() time.Time
}

// NewStatusWriter creates a writer with a fresh run id.
func NewStatusWriter(store storage.Store) *StatusWriter {
	return &StatusWriter{Store: store, RunID: uuid.NewString(), now: time.Now}
}

// Write stores the marker for stage. A nil stageErr records success.
func (w *StatusWriter) Write(ctx context.Context, stage string, stageErr error) error {
	state := "success"
	if stageErr != nil {
		state = "failure"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s status: %s\n", stage, state)
	fmt.Fprintf(&b, "run_id: %s\n", w.RunID)
	fmt.Fprintf(&b, "timestamp: %s\n", w.now().UTC().Format(time.RFC3339))
	if stageErr != nil {
		fmt.Fprintf(&b, "error: %s\n", stageErr)
	}
	return w.Store.Put(ctx, StatusKey(stage), []byte(b.String()))
}
