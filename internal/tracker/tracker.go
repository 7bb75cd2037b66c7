// Package tracker implements concrete observer sinks for
// workflowctx.Context snapshots: Redis (key/value + pub/sub), Kafka
// (durable audit mirror), a no-op default, and a fan-out multi-tracker.
// All sink errors are caught and logged — Track never raises.
package tracker

import (
	"github.com/loomwrk/loom/internal/workflowctx"
	"go.uber.org/zap"
)

// NoOp is re-exported for callers that want an explicit, named no-op
// rather than relying on workflowctx.New's nil-tracker default.
type NoOp = workflowctx.NoOpTracker

// Multi fans a snapshot out to every Tracker it wraps. Each sink is
// invoked independently so a failure in one (logged by that sink) never
// prevents another from receiving the snapshot.
type Multi struct {
	Trackers []workflowctx.Tracker
}

// NewMulti builds a fan-out Tracker over the given sinks.
func NewMulti(trackers ...workflowctx.Tracker) *Multi {
	return &Multi{Trackers: trackers}
}

func (m *Multi) Track(workflowID string, snap workflowctx.Snapshot) {
	for _, t := range m.Trackers {
		t.Track(workflowID, snap)
	}
}

// Logging wraps another Tracker and logs every snapshot's status
// transition at debug level, useful in tests and local runs without a
// real Redis/Kafka broker.
type Logging struct {
	Logger *zap.Logger
	Next   workflowctx.Tracker
}

func (l *Logging) Track(workflowID string, snap workflowctx.Snapshot) {
	if l.Logger != nil {
		l.Logger.Debug("workflow snapshot",
			zap.String("workflow_id", workflowID),
			zap.String("status", snap.Status))
	}
	if l.Next != nil {
		l.Next.Track(workflowID, snap)
	}
}
