package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// EventLog is append-only. Rows are inserted and read back, never updated.
type EventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Append(ctx context.Context, ev domain.IngestEvent) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO ingest_events (document_id, stage, status, message, trace_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, ev.DocumentID, string(ev.Stage), string(ev.Status), nullString(ev.Message), nullString(ev.TraceID), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ingest event: %w", err)
	}
	return nil
}

func (l *EventLog) ListByDocument(ctx context.Context, documentID string) ([]domain.IngestEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT id, document_id, stage, status, message, trace_id, created_at
FROM ingest_events
WHERE document_id = $1
ORDER BY id
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query ingest events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.IngestEvent, 0, 16)
	for rows.Next() {
		var ev domain.IngestEvent
		var stage, status string
		var message, traceID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.DocumentID, &stage, &status, &message, &traceID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ingest event: %w", err)
		}
		ev.Stage = domain.Stage(stage)
		ev.Status = domain.EventStatus(status)
		ev.Message = message.String
		ev.TraceID = traceID.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest events: %w", err)
	}
	return events, nil
}
