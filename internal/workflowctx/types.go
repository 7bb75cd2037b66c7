package workflowctx

import (
	"time"

	"github.com/loomwrk/loom/internal/decide"
	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/retry"
	"github.com/loomwrk/loom/internal/value"
)

// Status is the workflow-level lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// StepStatus is the per-step lifecycle state.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFail    StepStatus = "fail"
	StepSkipped StepStatus = "skipped"
)

// Reference is one entry of a step's inputSpec: either a literal value or
// a dependency on another step's output key.
type Reference struct {
	Literal    bool
	Value      any
	SourceStep string
	OutputKey  string
}

// Lit builds a literal Reference.
func Lit(v any) Reference { return Reference{Literal: true, Value: v} }

// Dep builds a dependency Reference on sourceStep's outputKey.
func Dep(sourceStep, outputKey string) Reference {
	return Reference{SourceStep: sourceStep, OutputKey: outputKey}
}

// InputSpec is one named, ordered parameter of a step.
type InputSpec struct {
	Name string
	Ref  Reference
}

// RoutingFunc is the imperative counterpart to a Decider: given a step's
// output, it names the next step id(s) to run, or returns nil/empty to
// keep the static edges.
type RoutingFunc func(output value.Map) ([]string, error)

// StepDefinition is the static description of one step in the DAG.
// The Scheduler reads it; only Context mutates it.
type StepDefinition struct {
	ID            string
	Job           job.Job
	InputSpec     []InputSpec
	Retry         retry.Policy
	Timeout       time.Duration
	StopOnFail    bool
	OutgoingEdges []string
	Decider       *decide.Decider
	Routing       RoutingFunc
}

// ExecutionRecord is the per-run bookkeeping for one step.
type ExecutionRecord struct {
	Status               StepStatus
	Attempts             int
	StartedAt            *time.Time
	EndedAt              *time.Time
	ExecutionTimeSeconds float64
	MemoryUsed           int64
	PeakMemory           int64
	Inputs               value.Map
	Output               value.Map
	Errors               []string
	Logs                 []string
	SkipReason           string
}

func newExecutionRecord() *ExecutionRecord {
	return &ExecutionRecord{Status: StepPending}
}

// Performance aggregates workflow-level resource usage, mirrored into
// every snapshot.
type Performance struct {
	StartMemory   int64
	PeakMemory    int64
	MemoryUsed    int64
	ExecutionTime float64
}
