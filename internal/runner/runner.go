// Package runner implements two Runner strategies: Inline (direct
// in-process invocation) and OutOfProcess (spawn a worker subprocess per
// job). Both satisfy the same batch contract so the Scheduler can swap
// one for the other without change.
package runner

import (
	"context"
	"time"

	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/value"
)

// Task is one job invocation the Scheduler asks a Runner to perform:
// the job itself, its freshly-resolved inputs, the read-only view handed
// to Job.Run, and the per-step timeout (zero means none).
type Task struct {
	StepID     string
	WorkflowID string
	Job        job.Job
	Inputs     value.Map
	View       job.View
	Timeout    time.Duration
}

// StepOutcome is the normalized result of one job invocation, whether it
// ran in-process or in a worker subprocess.
type StepOutcome struct {
	Success    bool
	Result     value.Map
	Error      string
	Logs       []string
	Errors     []string
	MemoryUsed int64
	PeakMemory int64
}

// Runner executes a batch of Tasks and returns one StepOutcome per
// StepID. The Scheduler calls it with a single Task per call, once per
// attempt of each step; the contract accepts a batch of any size.
type Runner interface {
	Run(ctx context.Context, tasks map[string]Task) map[string]StepOutcome
}
