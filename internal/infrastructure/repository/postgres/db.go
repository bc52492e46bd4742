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

// EnsureSchema bootstraps all pipeline and canonical tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	detected_type TEXT,
	detected_language TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	project_id TEXT,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL,
	error_message TEXT,
	committed_at TIMESTAMPTZ,
	deleted_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_content_hash
	ON documents(content_hash) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS ingest_events (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT,
	trace_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingest_events_document ON ingest_events(document_id, id);

CREATE TABLE IF NOT EXISTS extracted_items (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	item_type TEXT NOT NULL,
	title TEXT NOT NULL,
	vendor_name TEXT,
	vendor_id TEXT,
	material_name TEXT,
	material_id TEXT,
	quantity DOUBLE PRECISION,
	unit TEXT,
	unit_price DOUBLE PRECISION,
	total_price DOUBLE PRECISION,
	tax_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	lead_time_days INTEGER NOT NULL DEFAULT 0,
	source_page INTEGER NOT NULL DEFAULT 0,
	source_span_start INTEGER NOT NULL DEFAULT 0,
	source_span_end INTEGER NOT NULL DEFAULT 0,
	evidence TEXT,
	raw_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_valid BOOLEAN NOT NULL DEFAULT FALSE,
	issues JSONB NOT NULL DEFAULT '[]'::jsonb,
	occurred_at TIMESTAMPTZ,
	committed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extracted_items_document ON extracted_items(document_id);

CREATE TABLE IF NOT EXISTS clarification_questions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	item_id TEXT NOT NULL REFERENCES extracted_items(id),
	field_key TEXT NOT NULL,
	question TEXT NOT NULL,
	status TEXT NOT NULL,
	answer TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	answered_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_clarifications_document
	ON clarification_questions(document_id, status);

CREATE TABLE IF NOT EXISTS vendors (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS materials (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	unit TEXT
);

CREATE TABLE IF NOT EXISTS vendor_prices (
	id TEXT PRIMARY KEY,
	vendor_id TEXT,
	vendor_name TEXT NOT NULL,
	material_id TEXT,
	material_name TEXT NOT NULL,
	unit TEXT,
	unit_price DOUBLE PRECISION NOT NULL,
	tax_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	lead_time_days INTEGER NOT NULL DEFAULT 0,
	source_document_id TEXT NOT NULL,
	source_page INTEGER NOT NULL DEFAULT 0,
	source_span TEXT,
	source_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (vendor_name, material_name)
);

CREATE TABLE IF NOT EXISTS purchases (
	id TEXT PRIMARY KEY,
	vendor_id TEXT,
	vendor_name TEXT NOT NULL,
	material_name TEXT,
	title TEXT NOT NULL,
	quantity DOUBLE PRECISION,
	unit TEXT,
	unit_price DOUBLE PRECISION,
	total_price DOUBLE PRECISION,
	occurred_at TIMESTAMPTZ,
	source_document_id TEXT NOT NULL,
	source_page INTEGER NOT NULL DEFAULT 0,
	source_span TEXT,
	source_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS shipping_quotes (
	id TEXT PRIMARY KEY,
	vendor_id TEXT,
	vendor_name TEXT NOT NULL,
	title TEXT NOT NULL,
	price DOUBLE PRECISION,
	lead_time_days INTEGER NOT NULL DEFAULT 0,
	occurred_at TIMESTAMPTZ,
	source_document_id TEXT NOT NULL,
	source_page INTEGER NOT NULL DEFAULT 0,
	source_span TEXT,
	source_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_items (
	id TEXT PRIMARY KEY,
	item_type TEXT NOT NULL,
	title TEXT NOT NULL,
	quantity DOUBLE PRECISION,
	unit TEXT,
	unit_price DOUBLE PRECISION,
	source_document_id TEXT NOT NULL,
	source_page INTEGER NOT NULL DEFAULT 0,
	source_span TEXT,
	source_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
