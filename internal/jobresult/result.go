// Package jobresult implements a per-attempt execution record for a
// single Job invocation, generalizing persistence.StepExecution (which
// recorded one step per whole workflow run) down to one attempt at a
// time. The Runners, the Scheduler and Context in this module do not use
// it: they exchange runner.StepOutcome and workflowctx.ExecutionRecord.
package jobresult

import (
	"time"

	"github.com/loomwrk/loom/internal/value"
)

// Status is the lifecycle state of a single job attempt.
type Status string

const (
	Pending Status = "pending"
	Success Status = "success"
	Failed  Status = "failed"
)

// Result records one attempt of one step: what it was given, what it
// returned, and how long it took.
type Result struct {
	StepID        string
	JobName       string
	AttemptNumber int
	Status        Status
	Output        value.Map
	Errors        []string
	Logs          []string
	Input         value.Map
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// New starts a Result in the Pending state at the current instant.
func New(stepID, jobName string, attempt int, input value.Map, now time.Time) *Result {
	return &Result{
		StepID:        stepID,
		JobName:       jobName,
		AttemptNumber: attempt,
		Status:        Pending,
		Input:         input,
		StartTime:     now,
	}
}

// Finish closes out the Result: sets EndTime/Duration, stores the
// (possibly wrapped) output, and derives Status from whether Errors is
// non-empty — a non-empty errors collection is a failure even if the Job
// never returned a Go error.
func (r *Result) Finish(output any, errs []string, logs []string, now time.Time) {
	r.EndTime = now
	r.Duration = now.Sub(r.StartTime)
	r.Errors = errs
	r.Logs = logs
	r.Output = value.Wrap(output)
	if len(errs) > 0 {
		r.Status = Failed
	} else {
		r.Status = Success
	}
}
