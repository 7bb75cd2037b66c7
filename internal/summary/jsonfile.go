package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loomwrk/loom/internal/workflowctx"
)

// JSONFile writes one indented JSON file per workflow run, keyed by
// workflow id, written once at run end.
type JSONFile struct {
	dataDir string
}

// NewJSONFile creates a JSONFile sink rooted at dataDir, creating the
// directory if it does not exist.
func NewJSONFile(dataDir string) (*JSONFile, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("summary: create data dir: %w", err)
	}
	return &JSONFile{dataDir: dataDir}, nil
}

func (j *JSONFile) Record(_ context.Context, snap workflowctx.Snapshot) error {
	path := filepath.Join(j.dataDir, fmt.Sprintf("%s.json", snap.WorkflowID))
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("summary: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("summary: write snapshot file: %w", err)
	}
	return nil
}
