package runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/loomwrk/loom/internal/errkind"
	"github.com/loomwrk/loom/internal/job"
)

// workerPayload is written to the temp file the worker subprocess reads.
type workerPayload struct {
	StepID          string         `json:"stepId"`
	JobSerialized   string         `json:"jobSerialized"`
	Inputs          map[string]any `json:"inputs"`
	GlobalsSerialized string       `json:"globalsSerialized"`
	WorkflowID      string         `json:"workflowId"`
}

// jobArray is the {class, id, data} shape job.Serializable round-trips
// through.
type jobArray struct {
	Class string         `json:"class"`
	ID    string         `json:"id"`
	Data  map[string]any `json:"data,omitempty"`
}

// OutOfProcess spawns one worker subprocess per job in a batch, marshals
// each job's inputs via a temp file, and demarshals a JSON StepOutcome
// from the worker's stdout.
type OutOfProcess struct {
	// WorkerPath is the executable implementing the worker protocol
	// (cmd/loomworker in this repository, or any binary satisfying the
	// same contract).
	WorkerPath string
	// ProcessTimeout bounds each subprocess regardless of the task's
	// own per-step timeout; default 300s.
	ProcessTimeout time.Duration
}

// NewOutOfProcess builds an OutOfProcess runner targeting workerPath.
func NewOutOfProcess(workerPath string) *OutOfProcess {
	return &OutOfProcess{WorkerPath: workerPath, ProcessTimeout: 300 * time.Second}
}

func (o *OutOfProcess) Run(ctx context.Context, tasks map[string]Task) map[string]StepOutcome {
	type result struct {
		id      string
		outcome StepOutcome
	}

	results := make(chan result, len(tasks))
	for id, task := range tasks {
		go func(id string, task Task) {
			results <- result{id: id, outcome: o.runOne(ctx, task)}
		}(id, task)
	}

	out := make(map[string]StepOutcome, len(tasks))
	for range tasks {
		r := <-results
		out[r.id] = r.outcome
	}
	return out
}

func (o *OutOfProcess) runOne(ctx context.Context, task Task) StepOutcome {
	payload, err := buildPayload(task)
	if err != nil {
		return StepOutcome{Success: false, Error: err.Error(), Errors: []string{err.Error()}}
	}

	tmp, err := os.CreateTemp("", "loom-job-*.json")
	if err != nil {
		msg := fmt.Sprintf("failed to create temp file: %v", err)
		return StepOutcome{Success: false, Error: msg, Errors: []string{msg}}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		msg := fmt.Sprintf("failed to write temp file: %v", err)
		return StepOutcome{Success: false, Error: msg, Errors: []string{msg}}
	}
	tmp.Close()

	procTimeout := o.ProcessTimeout
	if procTimeout <= 0 {
		procTimeout = 300 * time.Second
	}
	if task.Timeout > 0 && task.Timeout < procTimeout {
		procTimeout = task.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, procTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, o.WorkerPath, tmpPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		msg := errkind.New(errkind.Timeout, fmt.Sprintf("worker timed out after %s", procTimeout)).Error()
		return StepOutcome{Success: false, Error: msg, Errors: []string{msg}}
	}

	if err != nil {
		msg := fmt.Sprintf("worker exited with error: %v: %s", err, stderrTail(stderr.String()))
		return StepOutcome{Success: false, Error: msg, Errors: []string{msg}}
	}

	var outcome StepOutcome
	if err := json.Unmarshal(stdout.Bytes(), &outcome); err != nil {
		msg := fmt.Sprintf("worker produced unparseable output: %v: %s", err, stderrTail(stderr.String()))
		return StepOutcome{Success: false, Error: msg, Errors: []string{msg}}
	}
	return outcome
}

func buildPayload(task Task) ([]byte, error) {
	sj, ok := task.Job.(job.Serializable)
	if !ok {
		return nil, fmt.Errorf("job for step %s is not serializable for out-of-process execution", task.StepID)
	}
	class, data := sj.Serialize()

	arr := jobArray{Class: class, ID: task.StepID, Data: data}
	arrJSON, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	globalsJSON, err := json.Marshal(task.View.Globals)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal globals: %w", err)
	}

	payload := workerPayload{
		StepID:            task.StepID,
		JobSerialized:     base64.StdEncoding.EncodeToString(arrJSON),
		Inputs:            task.Inputs,
		GlobalsSerialized: base64.StdEncoding.EncodeToString(globalsJSON),
		WorkflowID:        task.WorkflowID,
	}
	return json.Marshal(payload)
}

func stderrTail(s string) string {
	const maxLen = 2000
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}
