package workflowctx

// Snapshot is the serializable deep copy of Context handed to the
// Tracker after every mutation and to the summary callback at workflow
// end. This is the wire format external observers (the Redis/Kafka
// Trackers, the status HTTP surface) depend on.
type Snapshot struct {
	WorkflowID  string          `json:"workflow_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Status      string          `json:"status"`
	StartedAt   *float64        `json:"started_at"`
	CompletedAt *float64        `json:"completed_at"`
	Globals     map[string]any  `json:"globals"`
	Performance SnapPerformance `json:"performance"`
	Steps       []SnapStep      `json:"steps"`
	Results     map[string]any  `json:"results"`
	Executed    map[string]SnapExecution `json:"executed_jobs"`
}

type SnapPerformance struct {
	StartMemory int64   `json:"start_memory"`
	PeakMemory  int64   `json:"peak_memory"`
	MemoryUsed  int64   `json:"memory_used"`
	ExecTime    float64 `json:"execution_time"`
}

type SnapRetry struct {
	MaxAttempts int     `json:"max_attempts"`
	BaseDelay   float64 `json:"base_delay"`
	Multiplier  float64 `json:"multiplier"`
}

type SnapStep struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Inputs      map[string]any `json:"inputs"`
	Retry       *SnapRetry     `json:"retry"`
	Timeout     *float64       `json:"timeout"`
	StopOnFail  bool           `json:"stop_on_fail"`
	Connections []string       `json:"connections"`
}

type SnapExecution struct {
	Status      string                 `json:"status"`
	StartedAt   *float64               `json:"started_at"`
	CompletedAt *float64               `json:"completed_at"`
	Inputs      map[string]any         `json:"inputs"`
	Outputs     map[string]any         `json:"outputs"`
	Logs        []string               `json:"logs"`
	Errors      []string               `json:"errors"`
	Performance SnapExecPerformance    `json:"performance"`
}

type SnapExecPerformance struct {
	ExecTime   float64 `json:"execution_time"`
	MemoryUsed int64   `json:"memory_used"`
	PeakMemory int64   `json:"peak_memory"`
}
