// Package summary implements post-run sinks for a finished workflow's
// final Snapshot: a narrow, synchronous, once-per-run counterpart to the
// Tracker's streaming observer role.
package summary

import (
	"context"

	"github.com/loomwrk/loom/internal/workflowctx"
)

// Callback receives one Snapshot after a workflow finishes. Unlike
// Tracker, a Callback's error is returned to the caller (the Workflow
// builder only logs it, matching the Tracker's fire-and-forget posture,
// but the interface itself is honest about fallibility so direct callers
// of a Callback can decide for themselves).
type Callback interface {
	Record(ctx context.Context, snap workflowctx.Snapshot) error
}

// CallbackFunc adapts a plain function to Callback.
type CallbackFunc func(ctx context.Context, snap workflowctx.Snapshot) error

func (f CallbackFunc) Record(ctx context.Context, snap workflowctx.Snapshot) error {
	return f(ctx, snap)
}
