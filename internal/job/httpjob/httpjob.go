// Package httpjob implements the "http.request" Job: a per-run instance
// that performs one HTTP request and accumulates its own logs and errors.
package httpjob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/value"
)

const Class = "http.request"

// Job performs a single HTTP request, configured by its Run-time inputs:
// url (required), method (default GET), headers, body. The client timeout
// comes from the construction data (see New), not from the inputs.
type Job struct {
	client *http.Client
	logs   []string
	errs   []string
}

// New constructs an http.request Job. data may carry a "timeout_seconds"
// override for the underlying client; otherwise a 30s default is used,
// matching actions.NewHTTPAction.
func New(data value.Map) (job.Job, error) {
	timeout := 30 * time.Second
	if t, ok := data["timeout_seconds"].(float64); ok && t > 0 {
		timeout = time.Duration(t * float64(time.Second))
	}
	return &Job{client: &http.Client{Timeout: timeout}}, nil
}

func (j *Job) Run(ctx context.Context, inputs value.Map, _ job.View) (value.Map, error) {
	j.logs = nil
	j.errs = nil

	url, _ := inputs["url"].(string)
	if url == "" {
		j.errs = append(j.errs, "url parameter is required")
		return nil, nil
	}

	method := "GET"
	if m, ok := inputs["method"].(string); ok && m != "" {
		method = m
	}

	var body io.Reader
	if bodyData, ok := inputs["body"]; ok {
		bodyBytes, err := json.Marshal(bodyData)
		if err != nil {
			j.errs = append(j.errs, fmt.Sprintf("failed to marshal request body: %v", err))
			return nil, nil
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		j.errs = append(j.errs, fmt.Sprintf("failed to create request: %v", err))
		return nil, nil
	}

	if headers, ok := inputs["headers"].(value.Map); ok {
		for key, v := range headers {
			req.Header.Set(key, fmt.Sprintf("%v", v))
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	j.logs = append(j.logs, fmt.Sprintf("%s %s", method, url))

	resp, err := j.client.Do(req)
	if err != nil {
		j.errs = append(j.errs, fmt.Sprintf("HTTP request failed: %v", err))
		return nil, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		j.errs = append(j.errs, fmt.Sprintf("failed to read response body: %v", err))
		return nil, nil
	}

	var parsed any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			parsed = string(respBody)
		}
	}

	headers := value.Map{}
	for k, values := range resp.Header {
		if len(values) > 0 {
			headers[k] = values[0]
		}
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !success {
		j.errs = append(j.errs, fmt.Sprintf("HTTP request failed with status %d", resp.StatusCode))
	}
	j.logs = append(j.logs, fmt.Sprintf("status %d", resp.StatusCode))

	return value.Map{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsed,
		"success":     success,
	}, nil
}

func (j *Job) Logs() []string        { return j.logs }
func (j *Job) Errors() []string      { return j.errs }
func (j *Job) Name() string          { return "http.request" }
func (j *Job) Description() string   { return "performs an HTTP request and reports status/body" }
func (j *Job) Serialize() (string, value.Map) {
	return Class, value.Map{"timeout_seconds": j.client.Timeout.Seconds()}
}
