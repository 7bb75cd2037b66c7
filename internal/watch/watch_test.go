package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwrk/loom/internal/watch"
	"github.com/loomwrk/loom/internal/workflow"
)

const validDef = `
name: demo
steps:
  - id: a
    job:
      class: mem.echo
`

func TestStartLoadsExistingDefinitions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.yaml"), []byte(validDef), 0o644))

	loaded := make(chan *workflow.Definition, 1)
	w := watch.New(nil, dir, func(_ string, def *workflow.Definition) {
		loaded <- def
	}, nil)

	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case def := <-loaded:
		assert.Equal(t, "demo", def.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial load callback")
	}
}

func TestWriteTriggersReloadCallback(t *testing.T) {
	dir := t.TempDir()

	loaded := make(chan *workflow.Definition, 4)
	w := watch.New(nil, dir, func(_ string, def *workflow.Definition) {
		loaded <- def
	}, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	path := filepath.Join(dir, "new.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDef), 0o644))

	select {
	case def := <-loaded:
		assert.Equal(t, "demo", def.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write callback")
	}
}

func TestRemoveTriggersOnRemoveCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDef), 0o644))

	removed := make(chan string, 1)
	w := watch.New(nil, dir, func(string, *workflow.Definition) {}, func(p string) {
		removed <- p
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.Remove(path))

	select {
	case p := <-removed:
		assert.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remove callback")
	}
}

func TestNonDefinitionFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()

	loaded := make(chan *workflow.Definition, 1)
	w := watch.New(nil, dir, func(_ string, def *workflow.Definition) {
		loaded <- def
	}, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	select {
	case <-loaded:
		t.Fatal("callback fired for a non-definition file")
	case <-time.After(200 * time.Millisecond):
	}
}
