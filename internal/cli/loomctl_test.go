package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwrk/loom/internal/config"
	"github.com/loomwrk/loom/internal/runner"
	"github.com/loomwrk/loom/internal/workflowctx"
)

const validDef = `
name: demo
steps:
  - id: a
    job:
      class: mem.echo
`

func TestRunValidateAcceptsWellFormedDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDef), 0o644))

	err := runValidate(validateCmd, []string{path})
	assert.NoError(t, err)
}

func TestRunValidateRejectsMalformedDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [}"), 0o644))

	err := runValidate(validateCmd, []string{path})
	assert.Error(t, err)
}

func TestBuildRunnerDefaultsToInline(t *testing.T) {
	r := buildRunner(&config.Config{Runner: "inline"})
	_, ok := r.(*runner.Inline)
	assert.True(t, ok)
}

func TestBuildRunnerSelectsOutOfProcessWhenWorkerPathSet(t *testing.T) {
	r := buildRunner(&config.Config{Runner: "outofprocess", WorkerPath: "/usr/local/bin/loomworker"})
	oop, ok := r.(*runner.OutOfProcess)
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/loomworker", oop.WorkerPath)
}

func TestBuildRunnerFallsBackToInlineWithoutWorkerPath(t *testing.T) {
	r := buildRunner(&config.Config{Runner: "outofprocess"})
	_, ok := r.(*runner.Inline)
	assert.True(t, ok)
}

func TestBuildTrackerDefaultsToNoOp(t *testing.T) {
	tr := buildTracker(config.TrackerConfig{Backend: "none"})
	_, ok := tr.(workflowctx.NoOpTracker)
	assert.True(t, ok)
}

func TestBuildSummaryCallbackDefaultsToNilForUnknownBackend(t *testing.T) {
	cb, err := buildSummaryCallback(config.SummaryConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, cb)
}

func TestBuildSummaryCallbackBuildsJSONFileSink(t *testing.T) {
	dir := t.TempDir()
	cb, err := buildSummaryCallback(config.SummaryConfig{Backend: "jsonfile", JSONDir: dir})
	require.NoError(t, err)
	assert.NotNil(t, cb)
}
