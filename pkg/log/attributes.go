package log

// Attribute keys shared by every component. A pipeline run is queryable by
// them: each record of a fold carries cv.fold, each artifact write carries
// artifact.key, and so on.
const (
	ComponentKey = "component"
	OperationKey = "operation"

	RunIDKey    = "pipeline.run_id"
	StageKey    = "pipeline.stage"
	FoldKey     = "cv.fold"  // 1-based
	TrialKey    = "cv.trial" // 0-based within a fold
	ArtifactKey = "artifact.key"

	FamilyKey      = "model.family"
	HyperParamsKey = "model.hyperparams"

	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	GroupsKey   = "data.groups"
	ColumnsKey  = "data.columns"

	// MetricKey names the selection metric, ScoreKey holds its value.
	MetricKey     = "metrics.name"
	ScoreKey      = "metrics.score"
	DurationMsKey = "perf.duration_ms"
	PredsKey      = "preds.count"

	ErrorCodeKey = "error.code"
	ErrorTypeKey = "error.type"
)

// Operation values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
)

// Error codes.
const (
	ErrorTrialFailed = "TRIAL_FAILED"
)
