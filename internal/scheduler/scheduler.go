// Package scheduler implements the Scheduler: the only component that
// mutates a workflowctx.Context. It layers the step graph topologically,
// dispatches each layer through a runner.Runner bounded by a configurable
// parallelism limit, drives the per-step retry/timeout loop, and applies
// dynamic routing decisions between layers, recomputing the DAG after
// every layer.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loomwrk/loom/internal/errkind"
	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/runner"
	"github.com/loomwrk/loom/internal/value"
	"github.com/loomwrk/loom/internal/workflowctx"
)

// Scheduler drives one workflow run to completion.
type Scheduler struct {
	Runner         runner.Runner
	MaxParallelism int // 0 means unbounded within a layer
	Logger         *zap.Logger
}

// New builds a Scheduler. logger may be nil (falls back to zap.NewNop()).
func New(r runner.Runner, maxParallelism int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{Runner: r, MaxParallelism: maxParallelism, Logger: logger}
}

// abortState records the reason the first stopOnFail/UNKNOWN_ROUTE failure
// triggered abort, guarded against concurrent writers within a layer.
type abortState struct {
	mu  sync.Mutex
	err error
}

func (a *abortState) set(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

func (a *abortState) get() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// doneSet tracks which steps buildLayers should no longer consider, guarded
// by a mutex since multiple layer members may route concurrently (each
// pruning its own untaken branches) within the same runLayer call.
type doneSet struct {
	mu sync.Mutex
	m  map[string]bool
}

func newDoneSet() *doneSet { return &doneSet{m: map[string]bool{}} }

func (d *doneSet) mark(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[id] = true
}

func (d *doneSet) isDone(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.m[id]
}

func (d *doneSet) snapshot() map[string]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]bool, len(d.m))
	for k, v := range d.m {
		out[k] = v
	}
	return out
}

// Execute runs wc to completion: layering, dispatch, retry, routing, and
// final status determination. It returns the accumulated per-step results
// (absent entries for failed/skipped steps) and a non-nil error only when
// a stopOnFail step exhausted its retries or an unresolvable routing
// target aborted the run.
func (s *Scheduler) Execute(ctx context.Context, wc *workflowctx.Context) (map[string]value.Map, error) {
	wc.MarkWorkflowStarted()

	done := newDoneSet()
	abort := &abortState{}
	warnedCycle := false

	for {
		if !wc.Running() {
			break
		}

		stepIDs := wc.StepIDs()
		edges := wc.Edges()
		layers, cyclic := buildLayers(stepIDs, edges, done.snapshot())
		if cyclic && !warnedCycle {
			warnedCycle = true
			s.Logger.Warn("workflow graph contains a cycle; residual steps scheduled as singleton layers",
				zap.String("workflow_id", wc.WorkflowID()))
		}
		if len(layers) == 0 {
			break
		}

		layer := layers[0]
		s.runLayer(ctx, wc, layer, done, abort)

		if abort.get() != nil {
			break
		}
	}

	if err := abort.get(); err != nil {
		wc.MarkWorkflowEnded(workflowctx.StatusFail)
		return wc.Results(), err
	}

	wc.MarkWorkflowEnded(workflowctx.StatusSuccess)
	return wc.Results(), nil
}

// runLayer executes every step of one topological layer concurrently,
// bounded by MaxParallelism, and waits for all of them (including any
// still in flight when a sibling triggers abort) before returning.
func (s *Scheduler) runLayer(ctx context.Context, wc *workflowctx.Context, layer []string, done *doneSet, abort *abortState) {
	limit := s.MaxParallelism
	if limit <= 0 || limit > len(layer) {
		limit = len(layer)
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for _, id := range layer {
		id := id
		def, ok := wc.StepDefinition(id)
		if !ok {
			done.mark(id)
			continue
		}

		if def.Job == nil {
			wc.MarkStepSkipped(id, "no-op placeholder: never assigned a job")
			done.mark(id)
			continue
		}

		if !wc.Running() {
			// Abort already triggered by an earlier layer member; leave
			// this step PENDING rather than starting it.
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if !wc.Running() {
				return
			}
			s.runStep(ctx, wc, id, def, done, abort)
		}()
		done.mark(id)
	}
	wg.Wait()
}

// runStep drives one step through its retry/timeout loop and, on success,
// dynamic routing.
func (s *Scheduler) runStep(ctx context.Context, wc *workflowctx.Context, id string, def workflowctx.StepDefinition, done *doneSet, abort *abortState) {
	inputs, err := wc.ResolveInputs(id)
	if err != nil {
		wc.MarkStepFailed(id, []string{err.Error()}, nil)
		s.maybeAbort(wc, def, abort, err)
		return
	}
	wc.MarkStepStarted(id, inputs)

	maxAttempts := def.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var logs []string
	var errs []string
	var outcome runner.StepOutcome

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			inputs, err = wc.ResolveInputs(id)
			if err != nil {
				errs = append(errs, err.Error())
				break
			}
			wc.RecordAttempt(id, attempt, inputs)
		}

		task := runner.Task{
			StepID:     id,
			WorkflowID: wc.WorkflowID(),
			Job:        def.Job,
			Inputs:     inputs,
			View:       job.View{StepID: id, Globals: wc.GlobalsSnapshot()},
			Timeout:    def.Timeout,
		}
		outcomes := s.Runner.Run(ctx, map[string]runner.Task{id: task})
		outcome = outcomes[id]

		if outcome.Success {
			logs = append(logs, outcome.Logs...)
			wc.MarkStepCompleted(id, outcome.Result, logs)
			s.route(wc, id, def, outcome.Result, done, abort)
			return
		}

		logs = append(logs, outcome.Logs...)
		logLine := fmt.Sprintf("[Error] Attempt %d failed: %s", attempt, outcome.Error)
		logs = append(logs, logLine)
		if len(outcome.Errors) > 0 {
			errs = append(errs, outcome.Errors...)
		} else {
			errs = append(errs, outcome.Error)
		}

		if attempt < maxAttempts {
			delay := def.Retry.Delay(attempt)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
				}
			}
		}
	}

	if len(errs) == 0 {
		errs = []string{"step failed with no reported error"}
	}
	wc.MarkStepFailed(id, errs, logs)
	s.maybeAbort(wc, def, abort, errkind.New(errkind.JobReportedErr, errs[len(errs)-1]))
}

// maybeAbort applies stopOnFail semantics once a step has exhausted its
// attempts: stopOnFail steps abort the run; others leave the workflow
// running so downstream steps proceed with null inputs.
func (s *Scheduler) maybeAbort(wc *workflowctx.Context, def workflowctx.StepDefinition, abort *abortState, cause error) {
	if !def.StopOnFail {
		return
	}
	abort.set(cause)
	wc.Abort()
}

// route applies a step's Decider or RoutingFunc after a successful run,
// splicing new outgoing edges before the next layer is computed. Branches
// that lose their only path to execution as a result are pruned rather
// than left to free-float into the next layer as spuriously zero-indegree
// (buildLayers drops edges out of already-done steps entirely, so an
// untaken target with no other incoming edge would otherwise look
// identical to a root step).
func (s *Scheduler) route(wc *workflowctx.Context, id string, def workflowctx.StepDefinition, output value.Map, done *doneSet, abort *abortState) {
	if def.Decider == nil && def.Routing == nil {
		return
	}
	oldTargets := append([]string(nil), def.OutgoingEdges...)

	var targets []string
	if def.Routing != nil {
		t, err := def.Routing(output)
		if err != nil {
			s.handleRoutingError(wc, id, def, abort, err)
			return
		}
		targets = t
	} else {
		if t := def.Decider.Evaluate(output); t != "" {
			targets = []string{t}
		}
	}

	if len(targets) == 0 {
		return
	}

	for _, t := range targets {
		if _, ok := wc.StepDefinition(t); !ok {
			s.handleRoutingError(wc, id, def, abort,
				errkind.New(errkind.UnknownRoute, fmt.Sprintf("routing target %q from step %q does not exist", t, id)))
			return
		}
	}

	if err := wc.ClearOutgoingEdges(id); err != nil {
		s.Logger.Warn("clear outgoing edges failed", zap.String("step_id", id), zap.Error(err))
		return
	}
	for _, t := range targets {
		if err := wc.AddOutgoingEdge(id, t); err != nil {
			s.Logger.Warn("add outgoing edge failed", zap.String("step_id", id), zap.String("target", t), zap.Error(err))
		}
	}

	kept := make(map[string]bool, len(targets))
	for _, t := range targets {
		kept[t] = true
	}
	for _, dropped := range oldTargets {
		if kept[dropped] {
			continue
		}
		s.pruneIfUnreachable(wc, dropped, done)
	}
}

// pruneIfUnreachable marks a step SKIPPED if a routing decision just
// severed its only remaining incoming edge. Without this, buildLayers
// would see it as indistinguishable from a true root step (zero
// in-degree) on the next layer recompute and schedule it anyway, since
// buildLayers excludes edges out of already-done predecessors regardless
// of whether they were satisfied or dynamically removed.
func (s *Scheduler) pruneIfUnreachable(wc *workflowctx.Context, id string, done *doneSet) {
	if done.isDone(id) {
		return
	}
	rec, ok := wc.ExecutionRecord(id)
	if !ok || rec.Status != workflowctx.StepPending {
		return
	}
	for _, e := range wc.Edges() {
		if e[1] == id {
			return
		}
	}
	wc.MarkStepSkipped(id, "not selected by dynamic routing")
	done.mark(id)
}

func (s *Scheduler) handleRoutingError(wc *workflowctx.Context, id string, def workflowctx.StepDefinition, abort *abortState, err error) {
	s.Logger.Warn("routing error", zap.String("step_id", id), zap.Error(err))
	if def.StopOnFail {
		abort.set(err)
		wc.Abort()
	}
}
