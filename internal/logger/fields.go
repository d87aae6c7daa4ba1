package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID).
	FieldRequestID = "request_id"

	// FieldEpisodeID is the episode being processed.
	FieldEpisodeID = "episode_id"

	// FieldSourceRef is the submitted source reference.
	FieldSourceRef = "source_ref"

	// FieldBatchID is the batch run ID.
	FieldBatchID = "batch_id"

	// FieldStage is the pipeline stage name.
	FieldStage = "stage"

	// FieldComponent is the component/module name.
	FieldComponent = "component"
)

// Standard metric fields used for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds.
	FieldDurationMs = "duration_ms"

	// FieldStatus is the operation status.
	FieldStatus = "status"
)
