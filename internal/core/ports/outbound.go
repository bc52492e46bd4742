package ports

import (
	"context"
	"io"
	"time"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// FindByHash returns the newest non-deleted document with the given
	// content hash, or domain.ErrNotFound.
	FindByHash(ctx context.Context, hash string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetStoragePath(ctx context.Context, id, path string) error
	SetClassification(ctx context.Context, id string, docType domain.DocumentType, language string) error
	SetConfidence(ctx context.Context, id string, confidence float64, status domain.DocumentStatus) error
	MarkCommitted(ctx context.Context, id string, at time.Time) error
	SoftDelete(ctx context.Context, id string) error
	// HardDelete removes the metadata row entirely; only upload rollback
	// uses it, before any pipeline state exists.
	HardDelete(ctx context.Context, id string) error
	ListForReview(ctx context.Context, onlyNeedsReview bool, reviewThreshold float64) ([]domain.ReviewEntry, error)
}

// ItemRepository persists extracted items.
type ItemRepository interface {
	// ReplaceForDocument deletes the document's uncommitted items and
	// inserts the given set; a re-run replaces, never merges.
	ReplaceForDocument(ctx context.Context, documentID string, items []domain.ExtractedItem) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.ExtractedItem, error)
	GetByID(ctx context.Context, id string) (*domain.ExtractedItem, error)
	Update(ctx context.Context, item *domain.ExtractedItem) error
	UpdateValidation(ctx context.Context, id string, outcome domain.ValidationOutcome) error
	UpdateLink(ctx context.Context, id, vendorID, materialID string) error
}

// EventLog is the append-only ingest audit trail.
type EventLog interface {
	Append(ctx context.Context, ev domain.IngestEvent) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.IngestEvent, error)
}

// ClarificationRepository persists review questions and answers.
type ClarificationRepository interface {
	Create(ctx context.Context, q *domain.ClarificationQuestion) error
	GetByID(ctx context.Context, id string) (*domain.ClarificationQuestion, error)
	ListOpenByDocument(ctx context.Context, documentID string) ([]domain.ClarificationQuestion, error)
	MarkAnswered(ctx context.Context, id, answer string, at time.Time) error
}

// CanonicalStore owns the transactional transition from extracted items to
// canonical records. CommitItems writes all items, marks them and the
// document committed, and reports per-table counts. On failure everything
// rolls back and the error names the failed item.
type CanonicalStore interface {
	CommitItems(ctx context.Context, doc *domain.Document, items []domain.ExtractedItem) (*domain.CommitResult, error)
}

// CatalogRepository reads the entity-resolution reference catalog.
type CatalogRepository interface {
	Search(ctx context.Context, kind domain.EntityKind, query string) ([]domain.CatalogEntry, error)
}

// ObjectStorage stores source document bytes, content-addressed after a
// temporary staging write.
type ObjectStorage interface {
	SaveTemp(ctx context.Context, data io.Reader) (tempPath string, size int64, err error)
	Promote(ctx context.Context, tempPath, key string) (finalPath string, err error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// MessageQueue hands uploaded documents to the background pipeline workers.
type MessageQueue interface {
	PublishPipelineRequested(ctx context.Context, documentID string) error
	SubscribePipelineRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor is the parse capability: raw text plus structural elements
// and a language hint.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (*domain.ParsedDocument, error)
}

// DocumentClassifier labels text against the closed taxonomy.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, error)
}

// ContextPacker segments parsed elements into bounded chunks.
type ContextPacker interface {
	Pack(parsed *domain.ParsedDocument) []domain.Chunk
}

// StructuredExtractor populates the schema selected for the document type.
// It is called once per document, not once per chunk.
type StructuredExtractor interface {
	ExtractStructured(ctx context.Context, schema domain.SchemaKind, chunks []domain.Chunk) (*domain.ExtractionResult, error)
}

// EntityResolver ranks catalog matches for a free-text name.
type EntityResolver interface {
	Resolve(ctx context.Context, kind domain.EntityKind, name string) ([]domain.Candidate, error)
}

// Tracer is the best-effort trace sink. Implementations must be safe no-ops
// when tracing is disabled; nothing on the pipeline's critical path may
// depend on it.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, func(err error))
	TraceID(ctx context.Context) string
}
