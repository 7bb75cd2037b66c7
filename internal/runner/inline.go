package runner

import (
	"context"
	"fmt"
	"runtime"

	"github.com/loomwrk/loom/internal/errkind"
)

// Inline invokes each Task's Job directly in the calling goroutine tree,
// one goroutine per task within the batch, bounded by nothing beyond
// what the Scheduler's own layer-level semaphore already applies.
// Grounded on engine.Engine.executeStep's direct action.Execute call,
// generalized from a single action invocation to a batch run under
// per-step timeouts and panic recovery.
type Inline struct{}

// NewInline constructs the in-process Runner.
func NewInline() *Inline { return &Inline{} }

func (Inline) Run(ctx context.Context, tasks map[string]Task) map[string]StepOutcome {
	type result struct {
		id      string
		outcome StepOutcome
	}

	results := make(chan result, len(tasks))
	for id, task := range tasks {
		go func(id string, task Task) {
			results <- result{id: id, outcome: runOne(ctx, task)}
		}(id, task)
	}

	out := make(map[string]StepOutcome, len(tasks))
	for range tasks {
		r := <-results
		out[r.id] = r.outcome
	}
	return out
}

func runOne(ctx context.Context, task Task) (outcome StepOutcome) {
	runCtx := ctx
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = StepOutcome{
				Success: false,
				Error:   fmt.Sprintf("job panic: %v", r),
				Errors:  []string{fmt.Sprintf("job panic: %v", r)},
			}
		}
	}()

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	output, err := task.Job.Run(runCtx, task.Inputs, task.View)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	logs := task.Job.Logs()
	errs := task.Job.Errors()

	if runCtx.Err() != nil {
		msg := errkind.New(errkind.Timeout, fmt.Sprintf("step timed out after %s", task.Timeout)).Error()
		return StepOutcome{
			Success: false,
			Error:   msg,
			Errors:  append(errs, msg),
			Logs:    logs,
		}
	}

	if err != nil {
		msg := errkind.New(errkind.JobException, err.Error()).Error()
		return StepOutcome{
			Success: false,
			Error:   msg,
			Errors:  append(errs, msg),
			Logs:    logs,
		}
	}

	if len(errs) > 0 {
		msg := errkind.New(errkind.JobReportedErr, errs[0]).Error()
		return StepOutcome{
			Success: false,
			Error:   msg,
			Errors:  errs,
			Logs:    logs,
		}
	}

	memUsed := int64(after.Alloc) - int64(before.Alloc)
	if memUsed < 0 {
		memUsed = 0
	}

	return StepOutcome{
		Success:    true,
		Result:     output,
		Logs:       logs,
		MemoryUsed: memUsed,
		PeakMemory: int64(after.Alloc),
	}
}
