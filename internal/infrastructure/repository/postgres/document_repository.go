package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/buildcost/docpipe/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `
id, filename, mime_type, size_bytes, content_hash, storage_path,
detected_type, detected_language, confidence, project_id, tags,
status, error_message, committed_at, deleted_at, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, size_bytes, content_hash, storage_path,
	detected_type, detected_language, confidence, project_id, tags,
	status, error_message, committed_at, deleted_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.SizeBytes, doc.ContentHash, doc.StoragePath,
		nullString(string(doc.DetectedType)), nullString(doc.DetectedLanguage), doc.Confidence,
		nullString(doc.ProjectID), tagsJSON, string(doc.Status), nullString(doc.Error),
		nullTime(doc.CommittedAt), nullTime(doc.DeletedAt), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		// Losing the content_hash unique-index race is a conflict the
		// caller resolves by re-fetching the winner.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.WrapError(domain.ErrConflict, "document", err)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)
	return scanDocument(row, "id "+id)
}

func (r *DocumentRepository) FindByHash(ctx context.Context, hash string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE content_hash = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT 1
`, hash)
	return scanDocument(row, "hash "+hash)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, ref string) (*domain.Document, error) {
	var doc domain.Document
	var tagsRaw []byte
	var status string
	var detectedType, language, projectID, errMessage sql.NullString
	var committedAt, deletedAt sql.NullTime

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.SizeBytes, &doc.ContentHash, &doc.StoragePath,
		&detectedType, &language, &doc.Confidence, &projectID, &tagsRaw,
		&status, &errMessage, &committedAt, &deletedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document with %s", ref))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	doc.DetectedType = domain.DocumentType(detectedType.String)
	doc.DetectedLanguage = language.String
	doc.ProjectID = projectID.String
	doc.Error = errMessage.String
	doc.CommittedAt = timePtr(committedAt)
	doc.DeletedAt = timePtr(deletedAt)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1 AND deleted_at IS NULL
`, id, string(status), nullString(errMessage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRowsAffected(res, id)
}

func (r *DocumentRepository) SetStoragePath(ctx context.Context, id, path string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET storage_path = $2, updated_at = $3
WHERE id = $1
`, id, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update storage path: %w", err)
	}
	return requireRowsAffected(res, id)
}

func (r *DocumentRepository) SetClassification(ctx context.Context, id string, docType domain.DocumentType, language string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET detected_type = $2, detected_language = $3, updated_at = $4
WHERE id = $1 AND deleted_at IS NULL
`, id, string(docType), nullString(language), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	return requireRowsAffected(res, id)
}

func (r *DocumentRepository) SetConfidence(ctx context.Context, id string, confidence float64, status domain.DocumentStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET confidence = $2, status = $3, updated_at = $4
WHERE id = $1 AND deleted_at IS NULL
`, id, confidence, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update confidence: %w", err)
	}
	return requireRowsAffected(res, id)
}

func (r *DocumentRepository) MarkCommitted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET committed_at = $2, status = $3, updated_at = $2
WHERE id = $1 AND committed_at IS NULL
`, id, at, string(domain.StatusCommitted))
	if err != nil {
		return fmt.Errorf("mark committed: %w", err)
	}
	return requireRowsAffected(res, id)
}

func (r *DocumentRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET deleted_at = $2, updated_at = $2
WHERE id = $1 AND deleted_at IS NULL
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	return requireRowsAffected(res, id)
}

func (r *DocumentRepository) HardDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("hard delete document: %w", err)
	}
	return nil
}

// ListForReview returns documents needing review, or every live document
// with item counters attached when onlyNeedsReview is false.
func (r *DocumentRepository) ListForReview(ctx context.Context, onlyNeedsReview bool, reviewThreshold float64) ([]domain.ReviewEntry, error) {
	query := `
SELECT ` + documentColumns + `,
	(SELECT COUNT(*) FROM extracted_items i WHERE i.document_id = documents.id) AS item_count,
	(SELECT COUNT(*) FROM extracted_items i WHERE i.document_id = documents.id AND NOT i.is_valid) AS invalid_count,
	(SELECT COUNT(*) FROM extracted_items i WHERE i.document_id = documents.id AND i.confidence < $1) AS low_confidence_count,
	(SELECT COUNT(*) FROM clarification_questions q WHERE q.document_id = documents.id AND q.status = 'open') AS open_questions
FROM documents
WHERE deleted_at IS NULL`
	// Unscored documents (confidence still 0, nothing staged yet) count as
	// below threshold so fresh uploads are visible in the queue.
	if onlyNeedsReview {
		query += `
AND (status = 'needs_review' OR (confidence < $2 AND status NOT IN ('committed', 'failed')))`
	}
	query += `
ORDER BY created_at DESC`

	args := []any{reviewThreshold}
	if onlyNeedsReview {
		args = append(args, reviewThreshold)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query review queue: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ReviewEntry, 0, 16)
	for rows.Next() {
		var entry domain.ReviewEntry
		var tagsRaw []byte
		var status string
		var detectedType, language, projectID, errMessage sql.NullString
		var committedAt, deletedAt sql.NullTime

		err := rows.Scan(
			&entry.Document.ID, &entry.Document.Filename, &entry.Document.MimeType,
			&entry.Document.SizeBytes, &entry.Document.ContentHash, &entry.Document.StoragePath,
			&detectedType, &language, &entry.Document.Confidence, &projectID, &tagsRaw,
			&status, &errMessage, &committedAt, &deletedAt,
			&entry.Document.CreatedAt, &entry.Document.UpdatedAt,
			&entry.ItemCount, &entry.InvalidCount, &entry.LowConfidenceCount, &entry.OpenQuestions,
		)
		if err != nil {
			return nil, fmt.Errorf("scan review entry: %w", err)
		}
		if err := json.Unmarshal(tagsRaw, &entry.Document.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		entry.Document.Status = domain.DocumentStatus(status)
		entry.Document.DetectedType = domain.DocumentType(detectedType.String)
		entry.Document.DetectedLanguage = language.String
		entry.Document.ProjectID = projectID.String
		entry.Document.Error = errMessage.String
		entry.Document.CommittedAt = timePtr(committedAt)
		entry.Document.DeletedAt = timePtr(deletedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review entries: %w", err)
	}
	return entries, nil
}

func requireRowsAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document with id %s", id))
	}
	return nil
}
