// Package job defines the Job capability set — the one plug-in interface
// the core engine depends on to do actual work: a pure functional unit
// that may also report its own name/description and accumulate logs and
// errors across a single run.
package job

import (
	"context"

	"github.com/loomwrk/loom/internal/value"
)

// View is the read-only slice of workflow state a Job may consult while
// running: its own step id and the globals merged into its inputs. It is
// handed to Job.Run fresh on every attempt and must never be retained
// past that call (Design Note "Cyclic object graph").
type View struct {
	StepID  string
	Globals value.Map
}

// Job is a pure functional unit: given resolved inputs and a read-only
// View of the running workflow, it returns an output map. A Job may
// accumulate log lines and error strings during a single Run; a non-empty
// Errors() after Run returns is treated as failure even without a Go
// error.
type Job interface {
	// Run executes the job once. Implementations must be safe to call
	// repeatedly (once per retry attempt) and must not retain ctx or
	// view past the call.
	Run(ctx context.Context, inputs value.Map, view View) (value.Map, error)

	// Logs returns the log lines accumulated during the most recent Run.
	Logs() []string

	// Errors returns the error strings accumulated during the most
	// recent Run, independent of whether Run itself returned a Go error.
	Errors() []string

	// Name is the job's declared name, shown in snapshots in place of
	// the step id when set.
	Name() string

	// Description is a short human-readable summary of what the job
	// does.
	Description() string
}

// Serializable is implemented by Jobs the out-of-process Runner can
// marshal for a worker subprocess. Class must match the name under which
// the job was registered.
type Serializable interface {
	Job
	Serialize() (class string, data value.Map)
}
