package scheduler_test

import (
	gocontext "context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwrk/loom/internal/decide"
	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/retry"
	"github.com/loomwrk/loom/internal/runner"
	"github.com/loomwrk/loom/internal/scheduler"
	"github.com/loomwrk/loom/internal/value"
	"github.com/loomwrk/loom/internal/workflowctx"
)

// mapJob always returns a fixed output.
type mapJob struct {
	output value.Map
}

func (j mapJob) Run(gocontext.Context, value.Map, job.View) (value.Map, error) { return j.output, nil }
func (mapJob) Logs() []string                                                 { return nil }
func (mapJob) Errors() []string                                               { return nil }
func (mapJob) Name() string                                                   { return "" }
func (mapJob) Description() string                                           { return "" }

// sumJob sums the "total" input, a []any of numbers, into output key "total".
type sumJob struct{}

func (sumJob) Run(_ gocontext.Context, inputs value.Map, _ job.View) (value.Map, error) {
	items, _ := inputs["total"].([]any)
	total := 0
	for _, v := range items {
		switch n := v.(type) {
		case int:
			total += n
		case float64:
			total += int(n)
		}
	}
	return value.Map{"total": total}, nil
}
func (sumJob) Logs() []string      { return nil }
func (sumJob) Errors() []string    { return nil }
func (sumJob) Name() string        { return "sum" }
func (sumJob) Description() string { return "" }

// alwaysFailJob reports an error every attempt via its Errors() channel.
type alwaysFailJob struct{}

func (alwaysFailJob) Run(gocontext.Context, value.Map, job.View) (value.Map, error) {
	return nil, fmt.Errorf("always fails")
}
func (alwaysFailJob) Logs() []string      { return nil }
func (alwaysFailJob) Errors() []string    { return nil }
func (alwaysFailJob) Name() string        { return "fail" }
func (alwaysFailJob) Description() string { return "" }

// flakyJob fails failTimes attempts then succeeds.
type flakyJob struct {
	mu        sync.Mutex
	attempts  int
	failTimes int
}

func (j *flakyJob) Run(gocontext.Context, value.Map, job.View) (value.Map, error) {
	j.mu.Lock()
	j.attempts++
	n := j.attempts
	j.mu.Unlock()
	if n <= j.failTimes {
		return nil, fmt.Errorf("transient failure on attempt %d", n)
	}
	return value.Map{"ok": true}, nil
}
func (j *flakyJob) Logs() []string      { return nil }
func (j *flakyJob) Errors() []string    { return nil }
func (j *flakyJob) Name() string        { return "flaky" }
func (j *flakyJob) Description() string { return "" }

// timeoutThenOKJob blocks past the step timeout on its first attempt,
// then returns quickly on subsequent attempts.
type timeoutThenOKJob struct {
	mu       sync.Mutex
	attempts int
}

func (j *timeoutThenOKJob) Run(ctx gocontext.Context, _ value.Map, _ job.View) (value.Map, error) {
	j.mu.Lock()
	j.attempts++
	n := j.attempts
	j.mu.Unlock()

	sleep := 200 * time.Millisecond
	if n > 1 {
		sleep = 5 * time.Millisecond
	}
	select {
	case <-time.After(sleep):
		return value.Map{"ok": true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (j *timeoutThenOKJob) Logs() []string      { return nil }
func (j *timeoutThenOKJob) Errors() []string    { return nil }
func (j *timeoutThenOKJob) Name() string        { return "recovers" }
func (j *timeoutThenOKJob) Description() string { return "" }

func newSched() *scheduler.Scheduler {
	return scheduler.New(runner.NewInline(), 0, nil)
}

func TestLinearFetchThenSum(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	require.NoError(t, c.AddStep("fetch", mapJob{output: value.Map{"items": []any{1, 2, 3}}}, nil, true))
	require.NoError(t, c.AddStep("sum", sumJob{}, []workflowctx.InputSpec{
		{Name: "total", Ref: workflowctx.Dep("fetch", "items")},
	}, true))
	require.NoError(t, c.Connect("fetch", "sum"))

	results, err := newSched().Execute(gocontext.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, value.Map{"items": []any{1, 2, 3}}, results["fetch"])
	assert.Equal(t, value.Map{"total": 6}, results["sum"])
	assert.Equal(t, workflowctx.StatusSuccess, c.Status())
}

func TestParallelFanOut(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	require.NoError(t, c.AddStep("A", mapJob{output: value.Map{"a": 1}}, nil, true))
	require.NoError(t, c.AddStep("B", mapJob{output: value.Map{"b": 2}}, nil, true))
	require.NoError(t, c.AddStep("C", mapJob{output: value.Map{"c": 3}}, nil, true))
	require.NoError(t, c.AddStep("D", mapJob{output: value.Map{"d": 4}}, []workflowctx.InputSpec{
		{Name: "a", Ref: workflowctx.Dep("A", "a")},
		{Name: "b", Ref: workflowctx.Dep("B", "b")},
		{Name: "c", Ref: workflowctx.Dep("C", "c")},
	}, true))

	results, err := newSched().Execute(gocontext.Background(), c)
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Equal(t, workflowctx.StatusSuccess, c.Status())

	recD, ok := c.ExecutionRecord("D")
	require.True(t, ok)
	assert.Equal(t, 1, recD.Inputs["a"])
	assert.Equal(t, 2, recD.Inputs["b"])
	assert.Equal(t, 3, recD.Inputs["c"])
}

func TestRetryWithBackoffEventuallySucceeds(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	j := &flakyJob{failTimes: 2}
	require.NoError(t, c.AddStep("job", j, nil, true))
	require.NoError(t, c.SetRetry("job", retry.New(3, 5*time.Millisecond, 2, 0)))

	results, err := newSched().Execute(gocontext.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, value.Map{"ok": true}, results["job"])

	rec, ok := c.ExecutionRecord("job")
	require.True(t, ok)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, workflowctx.StepSuccess, rec.Status)
	assert.GreaterOrEqual(t, len(rec.Logs), 2)
}

func TestStopOnFailAbortsDownstream(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	require.NoError(t, c.AddStep("fail", alwaysFailJob{}, nil, true))
	require.NoError(t, c.AddStep("never", mapJob{output: value.Map{}}, nil, true))
	require.NoError(t, c.Connect("fail", "never"))

	results, err := newSched().Execute(gocontext.Background(), c)
	assert.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, workflowctx.StatusFail, c.Status())

	recFail, ok := c.ExecutionRecord("fail")
	require.True(t, ok)
	assert.Equal(t, workflowctx.StepFail, recFail.Status)
	assert.NotEmpty(t, recFail.Errors)

	recNever, ok := c.ExecutionRecord("never")
	require.True(t, ok)
	assert.Equal(t, workflowctx.StepPending, recNever.Status)
}

func TestStopOnFailFalseLetsWorkflowSucceed(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	require.NoError(t, c.AddStep("fail", alwaysFailJob{}, nil, false))
	require.NoError(t, c.AddStep("downstream", sumJob{}, []workflowctx.InputSpec{
		{Name: "total", Ref: workflowctx.Dep("fail", "items")},
	}, true))

	results, err := newSched().Execute(gocontext.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, workflowctx.StatusSuccess, c.Status())
	_, hasFailResult := results["fail"]
	assert.False(t, hasFailResult)
	// downstream still ran, with a nil (missing) value for the unresolved key
	assert.Equal(t, value.Map{"total": 0}, results["downstream"])
}

func TestDeciderRoutingPrunesTheUntakenBranch(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	require.NoError(t, c.AddStep("classify", mapJob{output: value.Map{"score": 0.9}}, nil, true))
	require.NoError(t, c.AddStep("high", mapJob{output: value.Map{"h": 1}}, nil, true))
	require.NoError(t, c.AddStep("low", mapJob{output: value.Map{"l": 1}}, nil, true))
	require.NoError(t, c.Connect("classify", "high"))
	require.NoError(t, c.Connect("classify", "low"))
	require.NoError(t, c.SetDecider("classify", decide.New([]decide.Condition{
		{Key: "score", Operator: decide.Gte, Expected: 0.8, Target: "high"},
	}, "low")))

	results, err := newSched().Execute(gocontext.Background(), c)
	require.NoError(t, err)

	assert.Contains(t, results, "high")
	assert.NotContains(t, results, "low")
	assert.Equal(t, workflowctx.StatusSuccess, c.Status())

	// "low" never ran; it is pruned to SKIPPED (rather than left PENDING)
	// so that the workflow-level SUCCESS/SKIPPED invariant holds once
	// "high" completes.
	recLow, ok := c.ExecutionRecord("low")
	require.True(t, ok)
	assert.Equal(t, workflowctx.StepSkipped, recLow.Status)
	assert.Equal(t, "not selected by dynamic routing", recLow.SkipReason)
}

func TestTimeoutThenRecoverySucceedsOnRetry(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	j := &timeoutThenOKJob{}
	require.NoError(t, c.AddStep("job", j, nil, true))
	require.NoError(t, c.SetTimeout("job", 50*time.Millisecond))
	require.NoError(t, c.SetRetry("job", retry.New(2, 5*time.Millisecond, 1, 0)))

	results, err := newSched().Execute(gocontext.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, value.Map{"ok": true}, results["job"])

	rec, ok := c.ExecutionRecord("job")
	require.True(t, ok)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, workflowctx.StepSuccess, rec.Status)
}

func TestEmptyGraphSucceedsWithEmptyResults(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	results, err := newSched().Execute(gocontext.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, workflowctx.StatusSuccess, c.Status())
}

func TestUnknownRoutingTargetFailsWorkflow(t *testing.T) {
	c := workflowctx.New("wf", "", nil, nil)
	require.NoError(t, c.AddStep("a", mapJob{output: value.Map{}}, nil, true))
	require.NoError(t, c.SetRoutingCallback("a", func(value.Map) ([]string, error) {
		return []string{"does-not-exist"}, nil
	}))

	_, err := newSched().Execute(gocontext.Background(), c)
	assert.Error(t, err)
	assert.Equal(t, workflowctx.StatusFail, c.Status())
}
