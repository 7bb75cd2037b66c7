// Command loomworker is the out-of-process worker the OutOfProcess
// Runner spawns once per job invocation. It reads the single JSON payload
// file path given as its only argument, reconstructs the Job from the
// registry, runs it, and writes a JSON StepOutcome to stdout.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/job/httpjob"
	"github.com/loomwrk/loom/internal/job/logjob"
	"github.com/loomwrk/loom/internal/job/shelljob"
	"github.com/loomwrk/loom/internal/runner"
	"github.com/loomwrk/loom/internal/value"

	"go.uber.org/zap"
)

// workerPayload mirrors runner.workerPayload (unexported in that
// package); field names/tags must match exactly since this is the wire
// contract between the two binaries.
type workerPayload struct {
	StepID            string         `json:"stepId"`
	JobSerialized     string         `json:"jobSerialized"`
	Inputs            map[string]any `json:"inputs"`
	GlobalsSerialized string         `json:"globalsSerialized"`
	WorkflowID        string         `json:"workflowId"`
}

type jobArray struct {
	Class string         `json:"class"`
	ID    string         `json:"id"`
	Data  map[string]any `json:"data"`
}

func main() {
	if len(os.Args) != 2 {
		fail("usage: loomworker <payload-file>")
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(fmt.Sprintf("read payload file: %v", err))
	}

	var payload workerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		fail(fmt.Sprintf("parse payload: %v", err))
	}

	outcome := run(payload)

	enc, err := json.Marshal(outcome)
	if err != nil {
		fail(fmt.Sprintf("marshal outcome: %v", err))
	}
	os.Stdout.Write(enc)
}

func run(payload workerPayload) runner.StepOutcome {
	arrJSON, err := base64.StdEncoding.DecodeString(payload.JobSerialized)
	if err != nil {
		return errOutcome(fmt.Sprintf("decode job: %v", err))
	}
	var arr jobArray
	if err := json.Unmarshal(arrJSON, &arr); err != nil {
		return errOutcome(fmt.Sprintf("unmarshal job: %v", err))
	}

	globalsJSON, err := base64.StdEncoding.DecodeString(payload.GlobalsSerialized)
	if err != nil {
		return errOutcome(fmt.Sprintf("decode globals: %v", err))
	}
	var globals value.Map
	if len(globalsJSON) > 0 {
		if err := json.Unmarshal(globalsJSON, &globals); err != nil {
			return errOutcome(fmt.Sprintf("unmarshal globals: %v", err))
		}
	}

	registry := job.NewRegistry()
	registerBuiltinJobs(registry)

	j, err := registry.Create(arr.Class, value.Map(arr.Data))
	if err != nil {
		return errOutcome(fmt.Sprintf("create job %q: %v", arr.Class, err))
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	output, runErr := j.Run(context.Background(), value.Map(payload.Inputs), job.View{
		StepID:  payload.StepID,
		Globals: globals,
	})

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	logs := j.Logs()
	errs := j.Errors()

	if runErr != nil {
		msg := runErr.Error()
		return runner.StepOutcome{Success: false, Error: msg, Errors: append(errs, msg), Logs: logs}
	}
	if len(errs) > 0 {
		return runner.StepOutcome{Success: false, Error: errs[0], Errors: errs, Logs: logs}
	}

	memUsed := int64(after.Alloc) - int64(before.Alloc)
	if memUsed < 0 {
		memUsed = 0
	}
	return runner.StepOutcome{
		Success:    true,
		Result:     output,
		Logs:       logs,
		MemoryUsed: memUsed,
		PeakMemory: int64(after.Alloc),
	}
}

func registerBuiltinJobs(registry *job.Registry) {
	registry.Register(httpjob.Class, httpjob.New)
	registry.Register(shelljob.Class, shelljob.New)
	registry.Register(logjob.Class, logjob.New(zap.NewNop()))
}

func errOutcome(msg string) runner.StepOutcome {
	return runner.StepOutcome{Success: false, Error: msg, Errors: []string{msg}}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
