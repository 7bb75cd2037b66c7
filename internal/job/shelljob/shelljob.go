// Package shelljob implements the "shell.exec" Job, generalized from
// actions.ShellAction the same way httpjob generalizes actions.HTTPAction.
package shelljob

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/value"
)

const Class = "shell.exec"

// Job runs a shell command via its Run-time inputs: command (required),
// working_dir, env, timeout_seconds (default 30).
type Job struct {
	logs []string
	errs []string
}

func New(value.Map) (job.Job, error) {
	return &Job{}, nil
}

func (j *Job) Run(ctx context.Context, inputs value.Map, _ job.View) (value.Map, error) {
	j.logs = nil
	j.errs = nil

	command, _ := inputs["command"].(string)
	if command == "" {
		j.errs = append(j.errs, "command parameter is required")
		return nil, nil
	}

	workDir, _ := inputs["working_dir"].(string)

	timeout := 30 * time.Second
	if t, ok := inputs["timeout_seconds"].(float64); ok && t > 0 {
		timeout = time.Duration(t * float64(time.Second))
	}

	env := os.Environ()
	if envVars, ok := inputs["env"].(value.Map); ok {
		for k, v := range envVars {
			env = append(env, fmt.Sprintf("%s=%v", k, v))
		}
	}

	j.logs = append(j.logs, fmt.Sprintf("exec: %s", command))

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		j.errs = append(j.errs, "empty command")
		return nil, nil
	}

	cmd := exec.CommandContext(cmdCtx, parts[0], parts[1:]...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	cmd.Env = env

	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	result := value.Map{
		"command":   command,
		"output":    outputStr,
		"success":   err == nil,
		"exit_code": 0,
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result["exit_code"] = exitErr.ExitCode()
		} else {
			result["exit_code"] = -1
		}
		if cmdCtx.Err() != nil {
			j.errs = append(j.errs, fmt.Sprintf("command timed out after %s", timeout))
		} else {
			j.errs = append(j.errs, fmt.Sprintf("command failed: %v", err))
		}
	}

	j.logs = append(j.logs, outputStr)
	return result, nil
}

func (j *Job) Logs() []string      { return j.logs }
func (j *Job) Errors() []string    { return j.errs }
func (j *Job) Name() string        { return "shell.exec" }
func (j *Job) Description() string { return "runs a shell command and captures its combined output" }
func (j *Job) Serialize() (string, value.Map) {
	return Class, value.Map{}
}
