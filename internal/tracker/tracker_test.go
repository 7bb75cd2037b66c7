package tracker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/loomwrk/loom/internal/tracker"
	"github.com/loomwrk/loom/internal/workflowctx"
)

type recordingTracker struct {
	calls []workflowctx.Snapshot
}

func (r *recordingTracker) Track(_ string, snap workflowctx.Snapshot) {
	r.calls = append(r.calls, snap)
}

func TestMultiFansOutToEverySink(t *testing.T) {
	a := &recordingTracker{}
	b := &recordingTracker{}
	m := tracker.NewMulti(a, b)

	snap := workflowctx.Snapshot{Status: "running"}
	m.Track("wf1", snap)

	assert.Len(t, a.calls, 1)
	assert.Len(t, b.calls, 1)
	assert.Equal(t, "running", a.calls[0].Status)
}

func TestMultiContinuesAfterPanickingSinkIsAbsent(t *testing.T) {
	// Multi has no built-in panic recovery; this documents that every
	// wrapped sink is expected to catch and log its own errors.
	a := &recordingTracker{}
	m := tracker.NewMulti(a)
	m.Track("wf1", workflowctx.Snapshot{Status: "success"})
	assert.Len(t, a.calls, 1)
}

func TestLoggingForwardsToNext(t *testing.T) {
	next := &recordingTracker{}
	l := &tracker.Logging{Logger: zap.NewNop(), Next: next}

	l.Track("wf1", workflowctx.Snapshot{Status: "fail"})

	assert.Len(t, next.calls, 1)
	assert.Equal(t, "fail", next.calls[0].Status)
}

func TestLoggingToleratesNilNextAndLogger(t *testing.T) {
	l := &tracker.Logging{}
	assert.NotPanics(t, func() {
		l.Track("wf1", workflowctx.Snapshot{Status: "running"})
	})
}

func TestNoOpTrackerDoesNothing(t *testing.T) {
	var n tracker.NoOp
	assert.NotPanics(t, func() {
		n.Track("wf1", workflowctx.Snapshot{})
	})
}
