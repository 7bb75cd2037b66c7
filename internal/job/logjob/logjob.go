// Package logjob implements the "log.emit" Job: it writes a structured
// log line through zap, with one field per key of its "fields" input map.
package logjob

import (
	"context"
	"fmt"

	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/value"
	"go.uber.org/zap"
)

const Class = "log.emit"

// Job writes a structured log line at the level named in its inputs.
type Job struct {
	logger *zap.Logger
	logs   []string
	errs   []string
}

// New constructs a log.emit Job bound to the given zap logger.
func New(logger *zap.Logger) job.Constructor {
	return func(value.Map) (job.Job, error) {
		return &Job{logger: logger}, nil
	}
}

func (j *Job) Run(_ context.Context, inputs value.Map, _ job.View) (value.Map, error) {
	j.logs = nil
	j.errs = nil

	message, _ := inputs["message"].(string)
	if message == "" {
		j.errs = append(j.errs, "message parameter is required")
		return nil, nil
	}

	level := "info"
	if lvl, ok := inputs["level"].(string); ok && lvl != "" {
		level = lvl
	}

	fields := make([]zap.Field, 0)
	if extra, ok := inputs["fields"].(value.Map); ok {
		for k, v := range extra {
			fields = append(fields, zap.Any(k, v))
		}
	}

	switch level {
	case "debug":
		j.logger.Debug(message, fields...)
	case "warn", "warning":
		j.logger.Warn(message, fields...)
	case "error":
		j.logger.Error(message, fields...)
	default:
		j.logger.Info(message, fields...)
	}

	j.logs = append(j.logs, fmt.Sprintf("[%s] %s", level, message))

	return value.Map{
		"message": message,
		"level":   level,
		"success": true,
	}, nil
}

func (j *Job) Logs() []string      { return j.logs }
func (j *Job) Errors() []string    { return j.errs }
func (j *Job) Name() string        { return "log.emit" }
func (j *Job) Description() string { return "emits a structured log line" }
func (j *Job) Serialize() (string, value.Map) {
	return Class, value.Map{}
}
