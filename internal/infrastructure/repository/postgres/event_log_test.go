package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/buildcost/docpipe/internal/core/domain"
)

func newEventLogWithMock(t *testing.T) (*EventLog, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &EventLog{db: db}, mock, func() { _ = db.Close() }
}

func TestAppendInsertsEvent(t *testing.T) {
	log, mock, done := newEventLogWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO ingest_events").
		WithArgs("doc-1", "parse", "ok", "elements=3 language=en", "trace-1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := log.Append(context.Background(), domain.IngestEvent{
		DocumentID: "doc-1",
		Stage:      domain.StageParse,
		Status:     domain.EventOK,
		Message:    "elements=3 language=en",
		TraceID:    "trace-1",
		CreatedAt:  now,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByDocumentPreservesInsertionOrder(t *testing.T) {
	log, mock, done := newEventLogWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "document_id", "stage", "status", "message", "trace_id", "created_at"}).
		AddRow(int64(1), "doc-1", "parse", "start", nil, nil, now).
		AddRow(int64(2), "doc-1", "parse", "ok", "elements=3 language=en", nil, now)
	mock.ExpectQuery("ORDER BY id").
		WithArgs("doc-1").
		WillReturnRows(rows)

	events, err := log.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Status != domain.EventStart || events[1].Status != domain.EventOK {
		t.Fatalf("unexpected order: %+v", events)
	}
	if events[1].Message != "elements=3 language=en" {
		t.Fatalf("message not decoded: %+v", events[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
