package summary

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/loomwrk/loom/internal/workflowctx"
)

// Postgres writes one row per finished run into a workflow_runs table,
// upserting on workflow_id so a retried Record call (e.g. from a caller
// that wraps Execute in its own retry) stays idempotent.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against dsn and ensures the
// workflow_runs table exists.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("summary: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("summary: ping postgres: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	workflow_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at DOUBLE PRECISION,
	completed_at DOUBLE PRECISION,
	snapshot JSONB NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("summary: create workflow_runs table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Record(ctx context.Context, snap workflowctx.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("summary: marshal snapshot: %w", err)
	}
	const upsert = `
INSERT INTO workflow_runs (workflow_id, name, status, started_at, completed_at, snapshot)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (workflow_id) DO UPDATE SET
	status = EXCLUDED.status,
	completed_at = EXCLUDED.completed_at,
	snapshot = EXCLUDED.snapshot`
	_, err = p.db.ExecContext(ctx, upsert, snap.WorkflowID, snap.Name, snap.Status, snap.StartedAt, snap.CompletedAt, payload)
	if err != nil {
		return fmt.Errorf("summary: insert workflow run: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error { return p.db.Close() }
