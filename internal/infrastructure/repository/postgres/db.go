package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaLockID int64 = 2026101701

const schemaDDL = `
CREATE TABLE IF NOT EXISTS scan_jobs (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	operation_handle TEXT,
	attempt INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL,
	error_message TEXT,
	purchase_date TIMESTAMPTZ,
	submitted_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_jobs_state ON scan_jobs(state);

CREATE TABLE IF NOT EXISTS scan_items (
	scan_id TEXT NOT NULL REFERENCES scan_jobs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	raw_name TEXT NOT NULL,
	matched_name TEXT,
	category TEXT,
	due_date TIMESTAMPTZ NOT NULL,
	scheduled BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT,
	PRIMARY KEY (scan_id, position)
);

CREATE TABLE IF NOT EXISTS reference_items (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	fridge_days DOUBLE PRECISION NOT NULL DEFAULT 0,
	freezer_days DOUBLE PRECISION NOT NULL DEFAULT 0,
	shelf_days DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS pending_notifications (
	id TEXT PRIMARY KEY,
	deliver_at TIMESTAMPTZ NOT NULL,
	item_names JSONB NOT NULL DEFAULT '[]'::jsonb,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_notifications_deliver_at ON pending_notifications(deliver_at);
`

// EnsureSchema creates every table the api and worker need.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}
