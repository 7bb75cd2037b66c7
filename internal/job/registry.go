package job

import (
	"fmt"
	"sync"

	"github.com/loomwrk/loom/internal/value"
)

// Constructor builds a Job instance from its serialized data, the
// symmetric counterpart to Serializable.Serialize.
type Constructor func(data value.Map) (Job, error)

// Registry is the process-wide job-class lookup the out-of-process
// Runner and YAML workflow loader use to turn a class name into a live
// Job. It is populated once at process start and treated as read-only
// thereafter (Design Note "Global mutable state"), mirroring
// actions.Registry's built-in-action registration in NewRegistry, but
// keyed by class name rather than instantiated eagerly.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry. Callers register built-in
// classes explicitly (see cmd/loomctl and cmd/loomworker) rather than
// the registry hardcoding them, since which Jobs are available is a
// deployment decision, not a core-engine one.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a job class. A duplicate class name overwrites the
// previous constructor, matching actions.Registry.RegisterAction's
// last-writer-wins behavior.
func (r *Registry) Register(class string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[class] = ctor
}

// Create instantiates a Job of the given class from serialized data.
func (r *Registry) Create(class string, data value.Map) (Job, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[class]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job class not found: %s", class)
	}
	return ctor(data)
}

// Classes lists all registered job class names.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	return names
}
