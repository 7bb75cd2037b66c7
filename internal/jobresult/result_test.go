package jobresult

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loomwrk/loom/internal/value"
)

func TestNewStartsPending(t *testing.T) {
	now := time.Unix(1000, 0)
	r := New("step1", "demo-job", 1, value.Map{"x": 1}, now)
	assert.Equal(t, Pending, r.Status)
	assert.Equal(t, 1, r.AttemptNumber)
	assert.Equal(t, now, r.StartTime)
}

func TestFinishSuccessWhenNoErrors(t *testing.T) {
	start := time.Unix(1000, 0)
	end := start.Add(2 * time.Second)
	r := New("step1", "demo-job", 1, nil, start)

	r.Finish(value.Map{"total": 6}, nil, []string{"did work"}, end)

	assert.Equal(t, Success, r.Status)
	assert.Equal(t, value.Map{"total": 6}, r.Output)
	assert.Equal(t, 2*time.Second, r.Duration)
	assert.Equal(t, end, r.EndTime)
}

func TestFinishFailsWhenErrorsNonEmpty(t *testing.T) {
	start := time.Unix(1000, 0)
	r := New("step1", "demo-job", 1, nil, start)

	r.Finish(nil, []string{"boom"}, nil, start.Add(time.Second))

	assert.Equal(t, Failed, r.Status)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestFinishWrapsNonMapOutput(t *testing.T) {
	start := time.Unix(1000, 0)
	r := New("step1", "demo-job", 1, nil, start)

	r.Finish(42, nil, nil, start)

	assert.Equal(t, value.Map{"result": 42}, r.Output)
}
