package migration

import (
	"context"
	"fmt"
	"time"

	"stacingest/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles the session store schema
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all migrations in order. Every step is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	d := dialectOf(db)

	if err := r.createVersionTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create schema_migrations table")
	}

	if err := r.createSessionsTable(ctx, db, d); err != nil {
		return errors.Wrap(err, "failed to create ingest_sessions table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	if err := r.recordVersion(ctx, db); err != nil {
		return errors.Wrap(err, "failed to record migration version")
	}

	return nil
}

// Applied reports the versions recorded in schema_migrations
func (r *MigrationRunner) Applied(ctx context.Context, db *sqlx.DB) ([]string, error) {
	var versions []string
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations ORDER BY applied_at`); err != nil {
		return nil, errors.DatabaseError("failed to read applied migrations", err)
	}
	return versions, nil
}

type dialect struct {
	json string
}

func dialectOf(db *sqlx.DB) dialect {
	if db.DriverName() == "postgres" {
		return dialect{json: "JSONB"}
	}
	return dialect{json: "TEXT"}
}

func (r *MigrationRunner) createVersionTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(50) PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createSessionsTable(ctx context.Context, db *sqlx.DB, d dialect) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS ingest_sessions (
			id VARCHAR(64) PRIMARY KEY,
			owner VARCHAR(255) NOT NULL DEFAULT '',
			ingestion_type VARCHAR(20) NOT NULL,
			document %[1]s NOT NULL,
			summaries %[1]s,
			extensions %[1]s,
			strict BOOLEAN NOT NULL DEFAULT false,
			edit_target %[1]s,
			state VARCHAR(50) NOT NULL DEFAULT 'idle',
			updated_at BIGINT NOT NULL
		)
	`, d.json))
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_ingest_sessions_updated_at ON ingest_sessions(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_sessions_owner ON ingest_sessions(owner)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *MigrationRunner) recordVersion(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO schema_migrations (version, applied_at)
		VALUES (?, ?)
		ON CONFLICT (version) DO NOTHING
	`), r.version, time.Now().UnixMilli())
	return err
}
