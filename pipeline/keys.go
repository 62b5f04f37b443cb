package pipeline

import "fmt"

// Artifact store keys. Fold candidates live under cross_val/fold_<id>/ and
// their metrics blob is written last, so its presence marks a completed fold.
const (
	KeyTransformer = "transformer/pipeline"
	KeySplitTrain  = "split/train"
	KeySplitTest   = "split/test"
	KeySelection   = "selection/best"
	KeyFinalModel  = "final/model"
	KeyFinalParams = "final/params"
	KeyEvalReport  = "evaluation/report"
	KeyEvalPlot    = "evaluation/predicted_vs_actual.png"

	artifactModel   = "model"
	artifactParams  = "params"
	artifactMetrics = "metrics"
)

// FoldKey returns the key of a fold artifact, e.g. cross_val/fold_2/metrics.
func FoldKey(foldID int, artifact string) string {
	return fmt.Sprintf("cross_val/fold_%d/%s", foldID, artifact)
}

// StatusKey returns the key of a stage's status marker.
func StatusKey(stage string) string {
	return "status/" + stage
}
