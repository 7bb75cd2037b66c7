// Package workflowctx implements Context: the single source of truth for
// one running workflow. It is mutated exclusively by the Scheduler and
// emits a Snapshot to its Tracker after every mutation.
package workflowctx

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loomwrk/loom/internal/decide"
	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/retry"
	"github.com/loomwrk/loom/internal/value"
)

// Tracker is the narrow observer contract Context depends on. Concrete
// implementations (Redis, Kafka, no-op, fan-out) live outside this
// package; Context only needs this much of them.
type Tracker interface {
	Track(workflowID string, snapshot Snapshot)
}

// NoOpTracker satisfies "a no-op Tracker must be the default".
type NoOpTracker struct{}

func (NoOpTracker) Track(string, Snapshot) {}

// Context is the live, mutable state of one workflow execution.
type Context struct {
	mu sync.Mutex

	workflowID  string
	name        string
	description *string
	status      Status
	globals     value.Map

	stepOrder []string
	steps     map[string]*StepDefinition
	edges     map[string]map[string]struct{} // explicit connect() edges, from -> set(to)

	results    map[string]value.Map
	executions map[string]*ExecutionRecord

	startedAt *time.Time
	endedAt   *time.Time
	perf      Performance
	running   bool

	tracker   Tracker
	emitQueue *emitQueue
}

// New creates a Context for a fresh workflow run. workflowID is a
// stringified UUIDv4.
func New(name string, description string, globals value.Map, tracker Tracker) *Context {
	if tracker == nil {
		tracker = NoOpTracker{}
	}
	var desc *string
	if description != "" {
		desc = &description
	}
	if globals == nil {
		globals = value.Map{}
	}
	return &Context{
		workflowID:  uuid.NewString(),
		name:        name,
		description: desc,
		status:      StatusPending,
		globals:     globals,
		steps:       make(map[string]*StepDefinition),
		edges:       make(map[string]map[string]struct{}),
		results:     make(map[string]value.Map),
		executions:  make(map[string]*ExecutionRecord),
		tracker:     tracker,
		emitQueue:   newEmitQueue(tracker),
	}
}

// Close stops accepting new Tracker deliveries and blocks until every
// snapshot already queued has been delivered. Callers should invoke this
// once a workflow run has finished running its Scheduler.
func (c *Context) Close() {
	c.emitQueue.close()
}

func (c *Context) WorkflowID() string { return c.workflowID }
func (c *Context) Name() string       { return c.name }

// AddStep registers a new step with its Job and ordered input spec.
// Rejects duplicate ids — except a not-yet-filled no-op placeholder
// created by an earlier Connect call, which AddStep upgrades in place so
// that connect(a, b) may precede addStep(b, ...).
func (c *Context) AddStep(id string, j job.Job, inputSpec []InputSpec, stopOnFail bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == "" {
		return fmt.Errorf("step id must not be empty")
	}

	if existing, exists := c.steps[id]; exists {
		if existing.Job != nil {
			return fmt.Errorf("duplicate step id: %s", id)
		}
		existing.Job = j
		existing.InputSpec = inputSpec
		existing.StopOnFail = stopOnFail
		c.emitLocked()
		return nil
	}

	c.steps[id] = &StepDefinition{
		ID:         id,
		Job:        j,
		InputSpec:  inputSpec,
		Retry:      retry.Default(),
		StopOnFail: stopOnFail,
	}
	c.stepOrder = append(c.stepOrder, id)
	c.executions[id] = newExecutionRecord()
	c.emitLocked()
	return nil
}

// ensurePlaceholder creates a no-op placeholder step if id is unknown,
// used by Connect when `to` has not been added yet.
func (c *Context) ensurePlaceholder(id string) {
	if _, exists := c.steps[id]; exists {
		return
	}
	c.steps[id] = &StepDefinition{ID: id, Retry: retry.Default(), StopOnFail: true}
	c.stepOrder = append(c.stepOrder, id)
	c.executions[id] = newExecutionRecord()
}

// Connect adds an explicit precedence edge from -> to. `to` may not yet
// exist, in which case a no-op placeholder step is created for it;
// `from` must already exist.
func (c *Context) Connect(from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.steps[from]; !exists {
		return fmt.Errorf("connect: unknown step %q", from)
	}
	c.ensurePlaceholder(to)

	if c.edges[from] == nil {
		c.edges[from] = make(map[string]struct{})
	}
	c.edges[from][to] = struct{}{}

	def := c.steps[from]
	if !containsStr(def.OutgoingEdges, to) {
		def.OutgoingEdges = append(def.OutgoingEdges, to)
	}
	c.emitLocked()
	return nil
}

// SetRetry installs a retry policy on an existing step. Last writer wins.
func (c *Context) SetRetry(id string, p retry.Policy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.steps[id]
	if !ok {
		return fmt.Errorf("set retry: unknown step %q", id)
	}
	def.Retry = p
	c.emitLocked()
	return nil
}

// SetTimeout installs a per-step timeout. Zero means no timeout.
func (c *Context) SetTimeout(id string, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.steps[id]
	if !ok {
		return fmt.Errorf("set timeout: unknown step %q", id)
	}
	def.Timeout = d
	c.emitLocked()
	return nil
}

// SetDecider installs a declarative router on a step.
func (c *Context) SetDecider(id string, d *decide.Decider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.steps[id]
	if !ok {
		return fmt.Errorf("set decider: unknown step %q", id)
	}
	def.Decider = d
	c.emitLocked()
	return nil
}

// SetRoutingCallback installs an imperative router on a step.
func (c *Context) SetRoutingCallback(id string, fn RoutingFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.steps[id]
	if !ok {
		return fmt.Errorf("set routing callback: unknown step %q", id)
	}
	def.Routing = fn
	c.emitLocked()
	return nil
}

// ClearOutgoingEdges removes every outgoing edge from id, used by
// dynamic routing before splicing in new targets.
func (c *Context) ClearOutgoingEdges(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.steps[id]
	if !ok {
		return fmt.Errorf("clear outgoing edges: unknown step %q", id)
	}
	def.OutgoingEdges = nil
	delete(c.edges, id)
	c.emitLocked()
	return nil
}

// AddOutgoingEdge installs a single new outgoing edge, used by dynamic
// routing after ClearOutgoingEdges. The target may be a step not yet
// known to the graph.
func (c *Context) AddOutgoingEdge(from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.steps[from]
	if !ok {
		return fmt.Errorf("add outgoing edge: unknown step %q", from)
	}
	if !containsStr(def.OutgoingEdges, to) {
		def.OutgoingEdges = append(def.OutgoingEdges, to)
	}
	if c.edges[from] == nil {
		c.edges[from] = make(map[string]struct{})
	}
	c.edges[from][to] = struct{}{}
	c.emitLocked()
	return nil
}

// SetGlobals overwrites the globals map.
func (c *Context) SetGlobals(m value.Map) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globals = m
	c.emitLocked()
}

// StepIDs returns step ids in insertion order.
func (c *Context) StepIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.stepOrder))
	copy(out, c.stepOrder)
	return out
}

// StepDefinition returns a copy-by-reference of a step's static
// definition (the Job itself is a shared read-only reference).
func (c *Context) StepDefinition(id string) (StepDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.steps[id]
	if !ok {
		return StepDefinition{}, false
	}
	return *def, true
}

// Edges returns the full edge set: explicit connect() edges plus every
// implicit dependency an inputSpec reference names. The union of both is
// load-bearing for layering.
func (c *Context) Edges() [][2]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[[2]string]struct{})
	var out [][2]string
	add := func(from, to string) {
		k := [2]string{from, to}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for from, tos := range c.edges {
		for to := range tos {
			add(from, to)
		}
	}
	for _, id := range c.stepOrder {
		def := c.steps[id]
		for _, ref := range def.InputSpec {
			if !ref.Ref.Literal && ref.Ref.SourceStep != "" {
				add(ref.Ref.SourceStep, id)
			}
		}
	}
	return out
}

// ResolveInputs builds the resolved input map for step id: literal
// references pass through, dependency references look up
// results[source][key] (nil if absent), and globals are merged in under
// keys that do not collide with resolved inputs — inputs win.
func (c *Context) ResolveInputs(id string) (value.Map, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	def, ok := c.steps[id]
	if !ok {
		return nil, fmt.Errorf("resolve inputs: unknown step %q", id)
	}

	out := value.Map{}
	for _, spec := range def.InputSpec {
		if spec.Ref.Literal {
			out[spec.Name] = value.CloneAny(spec.Ref.Value)
			continue
		}
		var resolved any
		if src, ok := c.results[spec.Ref.SourceStep]; ok {
			resolved = value.CloneAny(src[spec.Ref.OutputKey])
		}
		out[spec.Name] = resolved
	}
	for k, v := range c.globals {
		if _, collide := out[k]; !collide {
			out[k] = value.CloneAny(v)
		}
	}
	return out, nil
}

// Running reports whether the workflow is still permitted to start new
// steps (false once a stopOnFail failure has aborted the run).
func (c *Context) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Results returns a copy of the accumulated per-step outputs.
func (c *Context) Results() map[string]value.Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]value.Map, len(c.results))
	for k, v := range c.results {
		out[k] = v.Clone()
	}
	return out
}

// Status returns the current workflow status.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// MarkWorkflowStarted transitions PENDING -> RUNNING and records the
// start time/memory baseline.
func (c *Context) MarkWorkflowStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.startedAt = &now
	c.status = StatusRunning
	c.running = true
	c.perf.StartMemory = readAllocBytes()
	c.emitLocked()
}

// MarkWorkflowEnded transitions RUNNING -> status and records end
// time/execution duration.
func (c *Context) MarkWorkflowEnded(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.endedAt = &now
	c.status = status
	c.running = false
	if c.startedAt != nil {
		c.perf.ExecutionTime = now.Sub(*c.startedAt).Seconds()
	}
	c.updateMemoryLocked()
	c.emitLocked()
}

// Abort sets running = false without changing status, used by the
// Scheduler while it is still unwinding in-flight steps of the aborting
// layer.
func (c *Context) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.emitLocked()
}

// MarkStepStarted transitions a step PENDING -> RUNNING and records the
// inputs resolved for its first attempt.
func (c *Context) MarkStepStarted(id string, inputs value.Map) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.executions[id]
	now := time.Now()
	rec.Status = StepRunning
	rec.StartedAt = &now
	rec.Attempts++
	rec.Inputs = inputs
	c.emitLocked()
}

// RecordAttempt updates a running step's attempt counter and the inputs
// resolved for that attempt (inputs are re-resolved per retry since
// upstream results do not change between attempts but globals may).
func (c *Context) RecordAttempt(id string, attempt int, inputs value.Map) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.executions[id]
	rec.Attempts = attempt
	rec.Inputs = inputs
	c.emitLocked()
}

// GlobalsSnapshot returns a deep copy of the current globals map, used to
// populate job.View for a step invocation.
func (c *Context) GlobalsSnapshot() value.Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globals.Clone()
}

// MarkStepCompleted transitions a step RUNNING -> SUCCESS, stores its
// output into results, and records logs and timing.
func (c *Context) MarkStepCompleted(id string, output value.Map, logs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.executions[id]
	now := time.Now()
	rec.Status = StepSuccess
	rec.EndedAt = &now
	if rec.StartedAt != nil {
		rec.ExecutionTimeSeconds = now.Sub(*rec.StartedAt).Seconds()
	}
	rec.Output = output
	rec.Logs = append(rec.Logs, logs...)
	c.results[id] = output
	c.updateMemoryLocked()
	rec.MemoryUsed = c.perf.MemoryUsed
	rec.PeakMemory = c.perf.PeakMemory
	c.emitLocked()
}

// MarkStepFailed transitions a step RUNNING -> FAIL and records its
// errors; errs must be non-empty.
func (c *Context) MarkStepFailed(id string, errs []string, logs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.executions[id]
	now := time.Now()
	rec.Status = StepFail
	rec.EndedAt = &now
	if rec.StartedAt != nil {
		rec.ExecutionTimeSeconds = now.Sub(*rec.StartedAt).Seconds()
	}
	rec.Errors = append(rec.Errors, errs...)
	rec.Logs = append(rec.Logs, logs...)
	c.updateMemoryLocked()
	rec.MemoryUsed = c.perf.MemoryUsed
	rec.PeakMemory = c.perf.PeakMemory
	c.emitLocked()
}

// MarkStepSkipped transitions a step PENDING -> SKIPPED.
func (c *Context) MarkStepSkipped(id, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.executions[id]
	now := time.Now()
	rec.Status = StepSkipped
	rec.EndedAt = &now
	rec.SkipReason = reason
	c.emitLocked()
}

// ExecutionRecord returns a copy of a step's bookkeeping.
func (c *Context) ExecutionRecord(id string) (ExecutionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.executions[id]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

func (c *Context) updateMemoryLocked() {
	current := readAllocBytes()
	used := current - c.perf.StartMemory
	if used > c.perf.MemoryUsed {
		c.perf.MemoryUsed = used
	}
	if current > c.perf.PeakMemory {
		c.perf.PeakMemory = current
	}
}

func readAllocBytes() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc)
}

// Snapshot returns a serializable deep copy of the current state.
// Snapshot is pure: two calls with no interleaved mutation produce
// identical output.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// emitLocked hands the current snapshot to the single-consumer delivery
// queue under the same lock that produced it, so deliveries reach the
// Tracker in mutation order even though the queue drains on its own
// goroutine.
func (c *Context) emitLocked() {
	c.emitQueue.push(c.workflowID, c.snapshotLocked())
}

func (c *Context) snapshotLocked() Snapshot {
	steps := make([]SnapStep, 0, len(c.stepOrder))
	for _, id := range c.stepOrder {
		def := c.steps[id]
		name := id
		desc := ""
		if def.Job != nil {
			if def.Job.Name() != "" {
				name = def.Job.Name()
			}
			desc = def.Job.Description()
		}
		inputs := map[string]any{}
		for _, ref := range def.InputSpec {
			if ref.Ref.Literal {
				inputs[ref.Name] = ref.Ref.Value
			} else {
				inputs[ref.Name] = map[string]any{
					"source_step": ref.Ref.SourceStep,
					"output_key":  ref.Ref.OutputKey,
				}
			}
		}
		var retrySnap *SnapRetry
		if def.Retry.MaxAttempts > 1 {
			retrySnap = &SnapRetry{
				MaxAttempts: def.Retry.MaxAttempts,
				BaseDelay:   def.Retry.BaseDelay.Seconds(),
				Multiplier:  def.Retry.Multiplier,
			}
		}
		var timeout *float64
		if def.Timeout > 0 {
			t := def.Timeout.Seconds()
			timeout = &t
		}
		conns := make([]string, len(def.OutgoingEdges))
		copy(conns, def.OutgoingEdges)

		steps = append(steps, SnapStep{
			ID:          id,
			Name:        name,
			Description: desc,
			Inputs:      inputs,
			Retry:       retrySnap,
			Timeout:     timeout,
			StopOnFail:  def.StopOnFail,
			Connections: conns,
		})
	}

	results := map[string]any{}
	for id, out := range c.results {
		results[id] = map[string]any(out.Clone())
	}

	executed := map[string]SnapExecution{}
	for id, rec := range c.executions {
		executed[id] = SnapExecution{
			Status:      string(rec.Status),
			StartedAt:   floatTime(rec.StartedAt),
			CompletedAt: floatTime(rec.EndedAt),
			Inputs:      map[string]any(rec.Inputs.Clone()),
			Outputs:     optionalMap(rec.Output),
			Logs:        copyStrs(rec.Logs),
			Errors:      copyStrs(rec.Errors),
			Performance: SnapExecPerformance{
				ExecTime:   rec.ExecutionTimeSeconds,
				MemoryUsed: rec.MemoryUsed,
				PeakMemory: rec.PeakMemory,
			},
		}
	}

	globals := map[string]any(c.globals.Clone())

	return Snapshot{
		WorkflowID:  c.workflowID,
		Name:        c.name,
		Description: c.description,
		Status:      string(c.status),
		StartedAt:   floatTime(c.startedAt),
		CompletedAt: floatTime(c.endedAt),
		Globals:     globals,
		Performance: SnapPerformance{
			StartMemory: c.perf.StartMemory,
			PeakMemory:  c.perf.PeakMemory,
			MemoryUsed:  c.perf.MemoryUsed,
			ExecTime:    c.perf.ExecutionTime,
		},
		Steps:   steps,
		Results: results,
		Executed: executed,
	}
}

func floatTime(t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	f := float64(t.UnixNano()) / 1e9
	return &f
}

func optionalMap(m value.Map) map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any(m.Clone())
}

func copyStrs(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
