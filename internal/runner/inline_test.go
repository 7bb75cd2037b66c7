package runner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/runner"
	"github.com/loomwrk/loom/internal/value"
)

type fnJob struct {
	run  func(context.Context, value.Map, job.View) (value.Map, error)
	logs []string
	errs []string
}

func (f fnJob) Run(ctx context.Context, inputs value.Map, v job.View) (value.Map, error) {
	return f.run(ctx, inputs, v)
}
func (f fnJob) Logs() []string      { return f.logs }
func (f fnJob) Errors() []string    { return f.errs }
func (fnJob) Name() string          { return "fn" }
func (fnJob) Description() string   { return "" }

func TestInlineRunSucceeds(t *testing.T) {
	tasks := map[string]runner.Task{
		"a": {StepID: "a", Job: fnJob{run: func(context.Context, value.Map, job.View) (value.Map, error) {
			return value.Map{"x": 1}, nil
		}}},
	}
	out := runner.NewInline().Run(context.Background(), tasks)
	assert.True(t, out["a"].Success)
	assert.Equal(t, value.Map{"x": 1}, out["a"].Result)
}

func TestInlineRunRecoversFromPanic(t *testing.T) {
	tasks := map[string]runner.Task{
		"a": {StepID: "a", Job: fnJob{run: func(context.Context, value.Map, job.View) (value.Map, error) {
			panic("boom")
		}}},
	}
	out := runner.NewInline().Run(context.Background(), tasks)
	assert.False(t, out["a"].Success)
	assert.Contains(t, out["a"].Error, "job panic")
}

func TestInlineRunTimesOut(t *testing.T) {
	tasks := map[string]runner.Task{
		"a": {StepID: "a", Timeout: 20 * time.Millisecond, Job: fnJob{run: func(ctx context.Context, _ value.Map, _ job.View) (value.Map, error) {
			select {
			case <-time.After(500 * time.Millisecond):
				return value.Map{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}}},
	}
	out := runner.NewInline().Run(context.Background(), tasks)
	assert.False(t, out["a"].Success)
	assert.Contains(t, out["a"].Error, "timed out")
}

func TestInlineRunSurfacesJobReportedErrors(t *testing.T) {
	tasks := map[string]runner.Task{
		"a": {StepID: "a", Job: fnJob{
			errs: []string{"validation failed"},
			run: func(context.Context, value.Map, job.View) (value.Map, error) {
				return nil, nil
			},
		}},
	}
	out := runner.NewInline().Run(context.Background(), tasks)
	assert.False(t, out["a"].Success)
	assert.Equal(t, []string{"validation failed"}, out["a"].Errors)
}

func TestInlineRunBatchesConcurrently(t *testing.T) {
	tasks := map[string]runner.Task{
		"a": {StepID: "a", Job: fnJob{run: func(context.Context, value.Map, job.View) (value.Map, error) {
			return value.Map{"id": "a"}, nil
		}}},
		"b": {StepID: "b", Job: fnJob{run: func(context.Context, value.Map, job.View) (value.Map, error) {
			return value.Map{"id": "b"}, nil
		}}},
	}
	out := runner.NewInline().Run(context.Background(), tasks)
	assert.Len(t, out, 2)
	assert.True(t, out["a"].Success)
	assert.True(t, out["b"].Success)
}
