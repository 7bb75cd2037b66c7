package statusapi

import (
	"sort"
	"sync"

	"github.com/loomwrk/loom/internal/workflowctx"
)

// Store is the read surface the HTTP status API serves from. It is kept
// separate from workflowctx.Tracker so the status API can be backed by
// MemoryStore, or by a thin adapter over Redis/Kafka for a deployment
// that runs the API out-of-process from the Scheduler.
type Store interface {
	Snapshot(workflowID string) (workflowctx.Snapshot, bool)
	List() []workflowctx.Snapshot
}

// MemoryStore is a workflowctx.Tracker that retains the latest Snapshot
// per workflow id in memory, giving the status API something to serve
// without an external dependency. It is the only Store implementation in
// this module; the Redis and Kafka Trackers do not implement Store.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]workflowctx.Snapshot
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]workflowctx.Snapshot)}
}

// Track implements workflowctx.Tracker.
func (m *MemoryStore) Track(workflowID string, snap workflowctx.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[workflowID] = snap
}

// Snapshot returns the latest retained Snapshot for workflowID.
func (m *MemoryStore) Snapshot(workflowID string) (workflowctx.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.byID[workflowID]
	return snap, ok
}

// List returns every retained Snapshot, most recently started first.
func (m *MemoryStore) List() []workflowctx.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workflowctx.Snapshot, 0, len(m.byID))
	for _, snap := range m.byID {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].StartedAt, out[j].StartedAt
		if ai == nil || aj == nil {
			return ai != nil
		}
		return *ai > *aj
	})
	return out
}
