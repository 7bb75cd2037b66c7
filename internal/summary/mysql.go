package summary

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/loomwrk/loom/internal/workflowctx"
)

// MySQL mirrors Postgres against a MySQL-compatible server, using
// go-sql-driver/mysql.
type MySQL struct {
	db *sql.DB
}

// NewMySQL opens a connection pool against dsn (go-sql-driver/mysql DSN
// form, e.g. "user:pass@tcp(host:3306)/dbname") and ensures the
// workflow_runs table exists.
func NewMySQL(dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("summary: open mysql: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("summary: ping mysql: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	workflow_id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	status VARCHAR(32) NOT NULL,
	started_at DOUBLE,
	completed_at DOUBLE,
	snapshot JSON NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("summary: create workflow_runs table: %w", err)
	}
	return &MySQL{db: db}, nil
}

func (m *MySQL) Record(ctx context.Context, snap workflowctx.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("summary: marshal snapshot: %w", err)
	}
	const upsert = `
INSERT INTO workflow_runs (workflow_id, name, status, started_at, completed_at, snapshot)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	status = VALUES(status),
	completed_at = VALUES(completed_at),
	snapshot = VALUES(snapshot)`
	_, err = m.db.ExecContext(ctx, upsert, snap.WorkflowID, snap.Name, snap.Status, snap.StartedAt, snap.CompletedAt, payload)
	if err != nil {
		return fmt.Errorf("summary: insert workflow run: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (m *MySQL) Close() error { return m.db.Close() }
