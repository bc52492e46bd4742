package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buildcost/docpipe/internal/core/domain"
	"github.com/buildcost/docpipe/internal/core/ports"
)

type CommitUseCase struct {
	repo       ports.DocumentRepository
	items      ports.ItemRepository
	canonical  ports.CanonicalStore
	events     ports.EventLog
	tracer     ports.Tracer
	thresholds Thresholds
	logger     *slog.Logger
}

func NewCommitUseCase(
	repo ports.DocumentRepository,
	items ports.ItemRepository,
	canonical ports.CanonicalStore,
	events ports.EventLog,
	tracer ports.Tracer,
	thresholds Thresholds,
	logger *slog.Logger,
) *CommitUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommitUseCase{
		repo:       repo,
		items:      items,
		canonical:  canonical,
		events:     events,
		tracer:     tracer,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Commit upserts all eligible items into the canonical tables inside one
// transaction. Idempotence is decided by the document's committed marker,
// not re-derived from item state: a second commit is a zero-write no-op.
func (uc *CommitUseCase) Commit(ctx context.Context, documentID string) (*domain.CommitResult, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	if doc.CommittedAt != nil {
		return &domain.CommitResult{
			DocumentID:       doc.ID,
			AlreadyCommitted: true,
			Counts:           map[string]int{},
			CommittedAt:      *doc.CommittedAt,
		}, nil
	}

	switch doc.Status {
	case domain.StatusStaged:
	case domain.StatusNeedsReview:
		return nil, domain.WrapError(domain.ErrConflict, "commit",
			fmt.Errorf("document %s requires review", doc.ID))
	default:
		return nil, domain.WrapError(domain.ErrConflict, "commit",
			fmt.Errorf("document %s is %s, not staged", doc.ID, doc.Status))
	}

	ctx, endSpan := uc.tracer.Start(ctx, "pipeline.commit")
	traceID := uc.tracer.TraceID(ctx)

	all, err := uc.items.ListByDocument(ctx, documentID)
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("list items: %w", err)
	}
	eligible := make([]domain.ExtractedItem, 0, len(all))
	for _, item := range all {
		if item.IsValid && item.Confidence >= uc.thresholds.CommitThreshold {
			eligible = append(eligible, item)
		}
	}
	if len(eligible) == 0 {
		endSpan(nil)
		return nil, domain.WrapError(domain.ErrConflict, "commit",
			errors.New("no items meet the commit threshold"))
	}

	uc.appendEvent(ctx, doc.ID, domain.EventStart, traceID, fmt.Sprintf("items=%d", len(eligible)))

	result, err := uc.canonical.CommitItems(ctx, doc, eligible)
	if err != nil {
		uc.appendEvent(ctx, doc.ID, domain.EventFail, traceID, err.Error())
		endSpan(err)
		return nil, fmt.Errorf("commit items: %w", err)
	}
	result.TraceID = traceID

	uc.appendEvent(ctx, doc.ID, domain.EventOK, traceID,
		fmt.Sprintf("writes=%d", result.TotalWrites()))
	endSpan(nil)

	uc.logger.Info("document_committed",
		"document_id", doc.ID,
		"writes", result.TotalWrites(),
		"trace_id", traceID,
	)
	return result, nil
}

func (uc *CommitUseCase) appendEvent(ctx context.Context, documentID string, status domain.EventStatus, traceID, message string) {
	ev := domain.IngestEvent{
		DocumentID: documentID,
		Stage:      domain.StageCommit,
		Status:     status,
		Message:    message,
		TraceID:    traceID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.events.Append(ctx, ev); err != nil {
		uc.logger.Warn("ingest_event_append_failed", "document_id", documentID, "error", err)
	}
}
