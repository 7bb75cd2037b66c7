package statusapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwrk/loom/internal/statusapi"
	"github.com/loomwrk/loom/internal/workflowctx"
)

func f(v float64) *float64 { return &v }

func TestSnapshotReturnsLatestPerWorkflow(t *testing.T) {
	s := statusapi.NewMemoryStore()
	s.Track("wf1", workflowctx.Snapshot{WorkflowID: "wf1", Status: "running"})
	s.Track("wf1", workflowctx.Snapshot{WorkflowID: "wf1", Status: "success"})

	snap, ok := s.Snapshot("wf1")
	require.True(t, ok)
	assert.Equal(t, "success", snap.Status)
}

func TestSnapshotMissingWorkflowReturnsFalse(t *testing.T) {
	s := statusapi.NewMemoryStore()
	_, ok := s.Snapshot("ghost")
	assert.False(t, ok)
}

func TestListOrdersByStartedAtDescending(t *testing.T) {
	s := statusapi.NewMemoryStore()
	s.Track("older", workflowctx.Snapshot{WorkflowID: "older", StartedAt: f(100)})
	s.Track("newer", workflowctx.Snapshot{WorkflowID: "newer", StartedAt: f(200)})
	s.Track("unstarted", workflowctx.Snapshot{WorkflowID: "unstarted"})

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "newer", list[0].WorkflowID)
	assert.Equal(t, "older", list[1].WorkflowID)
	assert.Equal(t, "unstarted", list[2].WorkflowID)
}
