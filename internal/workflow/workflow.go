// Package workflow is the public builder surface for assembling a
// workflowctx.Context step by step and running it to completion.
package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/loomwrk/loom/internal/decide"
	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/retry"
	"github.com/loomwrk/loom/internal/runner"
	"github.com/loomwrk/loom/internal/scheduler"
	"github.com/loomwrk/loom/internal/summary"
	"github.com/loomwrk/loom/internal/value"
	"github.com/loomwrk/loom/internal/workflowctx"
)

// Workflow is a fluent builder around a workflowctx.Context: each method
// mutates the underlying Context immediately and returns the receiver so
// calls chain. Builder errors (unknown step id, duplicate id) are recorded
// and surfaced by Execute rather than panicking mid-chain, so a long build
// chain reads linearly.
type Workflow struct {
	ctx     *workflowctx.Context
	runner  runner.Runner
	logger  *zap.Logger
	maxPar  int
	summary summary.Callback
	err     error
}

// New starts a builder for a workflow named name with an optional
// description and initial globals. tracker may be nil (defaults to a
// no-op Tracker).
func New(name, description string, globals value.Map, tracker workflowctx.Tracker) *Workflow {
	return &Workflow{
		ctx:    workflowctx.New(name, description, globals, tracker),
		runner: runner.NewInline(),
		logger: zap.NewNop(),
		maxPar: 0,
	}
}

// Context exposes the underlying workflowctx.Context, e.g. for a caller
// that wants to read Snapshot() independent of Execute.
func (w *Workflow) Context() *workflowctx.Context { return w.ctx }

func (w *Workflow) fail(err error) *Workflow {
	if w.err == nil {
		w.err = err
	}
	return w
}

// AddStep registers step id running j, with its ordered input spec and
// stopOnFail policy.
func (w *Workflow) AddStep(id string, j job.Job, inputs []workflowctx.InputSpec, stopOnFail bool) *Workflow {
	if err := w.ctx.AddStep(id, j, inputs, stopOnFail); err != nil {
		return w.fail(err)
	}
	return w
}

// Connect adds an explicit precedence edge from -> to.
func (w *Workflow) Connect(from, to string) *Workflow {
	if err := w.ctx.Connect(from, to); err != nil {
		return w.fail(err)
	}
	return w
}

// WithRetry installs a retry policy on step id.
func (w *Workflow) WithRetry(id string, maxAttempts int, baseDelay time.Duration, multiplier float64, maxDelay time.Duration) *Workflow {
	if err := w.ctx.SetRetry(id, retry.New(maxAttempts, baseDelay, multiplier, maxDelay)); err != nil {
		return w.fail(err)
	}
	return w
}

// WithTimeout installs a per-step timeout on step id.
func (w *Workflow) WithTimeout(id string, d time.Duration) *Workflow {
	if err := w.ctx.SetTimeout(id, d); err != nil {
		return w.fail(err)
	}
	return w
}

// WithDecider installs a declarative conditional router on step id.
func (w *Workflow) WithDecider(id string, conditions []decide.Condition, def string) *Workflow {
	if err := w.ctx.SetDecider(id, decide.New(conditions, def)); err != nil {
		return w.fail(err)
	}
	return w
}

// WithRouting installs an imperative router on step id.
func (w *Workflow) WithRouting(id string, fn workflowctx.RoutingFunc) *Workflow {
	if err := w.ctx.SetRoutingCallback(id, fn); err != nil {
		return w.fail(err)
	}
	return w
}

// SetGlobals overwrites the workflow's globals map.
func (w *Workflow) SetGlobals(m value.Map) *Workflow {
	w.ctx.SetGlobals(m)
	return w
}

// SetRunner swaps the Runner used for execution (default runner.Inline).
func (w *Workflow) SetRunner(r runner.Runner) *Workflow {
	w.runner = r
	return w
}

// SetMaxParallelism bounds concurrent steps within a single layer; 0
// means unbounded.
func (w *Workflow) SetMaxParallelism(n int) *Workflow {
	w.maxPar = n
	return w
}

// SetLogger installs the zap.Logger the Scheduler logs cycle/routing
// warnings through.
func (w *Workflow) SetLogger(l *zap.Logger) *Workflow {
	if l != nil {
		w.logger = l
	}
	return w
}

// SetSummaryCallback installs a post-run sink that receives the final
// Snapshot at the end of Execute, before it returns.
func (w *Workflow) SetSummaryCallback(cb summary.Callback) *Workflow {
	w.summary = cb
	return w
}

// Execute runs the built DAG to completion via scheduler.Scheduler and,
// if a SummaryCallback was installed, hands it the final Snapshot before
// returning (errors from the summary sink are logged, never propagated,
// matching the Tracker's fire-and-forget contract).
func (w *Workflow) Execute(ctx context.Context) (map[string]value.Map, error) {
	if w.err != nil {
		return nil, w.err
	}

	sched := scheduler.New(w.runner, w.maxPar, w.logger)
	results, err := sched.Execute(ctx, w.ctx)
	w.ctx.Close()

	if w.summary != nil {
		snap := w.ctx.Snapshot()
		if sErr := w.summary.Record(ctx, snap); sErr != nil {
			w.logger.Warn("summary callback failed", zap.String("workflow_id", w.ctx.WorkflowID()), zap.Error(sErr))
		}
	}

	return results, err
}
