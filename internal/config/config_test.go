package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwrk/loom/internal/config"
)

func TestDefaultValues(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "./workflows", cfg.WorkflowDir)
	assert.Equal(t, 8000, cfg.StatusAPIPort)
	assert.Equal(t, "inline", cfg.Runner)
	assert.Equal(t, "none", cfg.Tracker.Backend)
	assert.Equal(t, "none", cfg.Summary.Backend)
}

func TestLoadWithoutFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default().LogLevel, cfg.LogLevel)
}

func TestLoadFromFileOverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.yaml")
	contents := `
status_api_port: 9100
runner: outofprocess
tracker:
  backend: redis
  redis_address: "localhost:6380"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.StatusAPIPort)
	assert.Equal(t, "outofprocess", cfg.Runner)
	assert.Equal(t, "redis", cfg.Tracker.Backend)
	assert.Equal(t, "localhost:6380", cfg.Tracker.RedisAddress)
	// Untouched fields keep their defaults.
	assert.Equal(t, "./workflows", cfg.WorkflowDir)
	assert.Equal(t, "none", cfg.Summary.Backend)
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
