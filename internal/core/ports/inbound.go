package ports

import (
	"context"
	"io"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// UploadRequest carries one file of a (possibly multi-file) upload call.
type UploadRequest struct {
	Filename  string
	MimeType  string
	ProjectID string
	Tags      []string
	Body      io.Reader
}

// UploadResult reports the stored or deduplicated document.
type UploadResult struct {
	Document  *domain.Document
	Duplicate bool
}

// DocumentIngestor is the inbound contract for upload, deduplication and
// removal of uncommitted documents.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
	Delete(ctx context.Context, documentID string) error
}

// PipelineRunner executes the staged pipeline for one document. onEvent may
// be nil; when set it receives every stage transition in order.
type PipelineRunner interface {
	Run(ctx context.Context, documentID string, onEvent func(domain.StageEvent)) (*domain.RunResult, error)
}

// ReviewService is the inbound contract for the review queue and
// clarification workflow.
type ReviewService interface {
	Queue(ctx context.Context, onlyNeedsReview bool) ([]domain.ReviewEntry, error)
	Status(ctx context.Context, documentID string) (*domain.DocumentView, error)
	Answer(ctx context.Context, questionID, answer string) (*domain.AnswerResult, error)
}

// CommitService moves staged items into the canonical store.
type CommitService interface {
	Commit(ctx context.Context, documentID string) (*domain.CommitResult, error)
}
