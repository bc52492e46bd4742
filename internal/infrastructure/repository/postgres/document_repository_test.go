package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/buildcost/docpipe/internal/core/domain"
)

func newDocRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "filename", "mime_type", "size_bytes", "content_hash", "storage_path",
		"detected_type", "detected_language", "confidence", "project_id", "tags",
		"status", "error_message", "committed_at", "deleted_at", "created_at", "updated_at",
	})
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansDocument(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT").
		WithArgs("doc-1").
		WillReturnRows(documentRows().AddRow(
			"doc-1", "invoice.pdf", "application/pdf", int64(2048), "abc123", "blobs/abc123",
			"invoice", "en", 0.9, nil, []byte(`["q3"]`),
			"staged", nil, nil, nil, now, now,
		))

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.DetectedType != domain.TypeInvoice || doc.Status != domain.StatusStaged {
		t.Fatalf("unexpected document %+v", doc)
	}
	if len(doc.Tags) != 1 || doc.Tags[0] != "q3" {
		t.Fatalf("tags not decoded: %v", doc.Tags)
	}
	if doc.CommittedAt != nil || doc.DeletedAt != nil {
		t.Fatalf("null timestamps must map to nil pointers: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateMapsUniqueViolationToConflict(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "documents_content_hash_key"})

	err := repo.Create(context.Background(), &domain.Document{
		ID:          "doc-1",
		Filename:    "invoice.pdf",
		ContentHash: "abc123",
		Status:      domain.StatusUploaded,
		Tags:        []string{},
	})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate hash, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByHashIgnoresDeletedDocuments(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	mock.ExpectQuery("deleted_at IS NULL").
		WithArgs("abc123").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByHash(context.Background(), "abc123")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.StatusParsing), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusParsing, "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkCommittedIsGuardedAgainstDoubleCommit(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	at := time.Now().UTC()
	mock.ExpectExec("committed_at IS NULL").
		WithArgs("doc-1", at, string(domain.StatusCommitted)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkCommitted(context.Background(), "doc-1", at)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for already-committed row, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReviewQueueIncludesUnscoredDocuments(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "filename", "mime_type", "size_bytes", "content_hash", "storage_path",
		"detected_type", "detected_language", "confidence", "project_id", "tags",
		"status", "error_message", "committed_at", "deleted_at", "created_at", "updated_at",
		"item_count", "invalid_count", "low_confidence_count", "open_questions",
	}).AddRow(
		"doc-1", "fresh.pdf", "application/pdf", int64(1024), "hash-1", "blobs/hash-1",
		nil, nil, 0.0, nil, []byte(`[]`),
		"uploaded", nil, nil, nil, now, now,
		0, 0, 0, 0,
	)

	// A freshly uploaded document carries confidence 0; the filter must not
	// require a positive score.
	mock.ExpectQuery(`needs_review' OR \(confidence < \$2`).
		WithArgs(0.8, 0.8).
		WillReturnRows(rows)

	entries, err := repo.ListForReview(context.Background(), true, 0.8)
	if err != nil {
		t.Fatalf("ListForReview() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Document.Status != domain.StatusUploaded {
		t.Fatalf("expected the unscored upload in the queue, got %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetConfidencePersistsStatusTogether(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", 0.85, string(domain.StatusNeedsReview), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetConfidence(context.Background(), "doc-1", 0.85, domain.StatusNeedsReview); err != nil {
		t.Fatalf("SetConfidence() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
