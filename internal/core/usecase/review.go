package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/buildcost/docpipe/internal/core/domain"
	"github.com/buildcost/docpipe/internal/core/ports"
)

type ReviewUseCase struct {
	repo       ports.DocumentRepository
	items      ports.ItemRepository
	questions  ports.ClarificationRepository
	events     ports.EventLog
	thresholds Thresholds
	logger     *slog.Logger
}

func NewReviewUseCase(
	repo ports.DocumentRepository,
	items ports.ItemRepository,
	questions ports.ClarificationRepository,
	events ports.EventLog,
	thresholds Thresholds,
	logger *slog.Logger,
) *ReviewUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewUseCase{
		repo:       repo,
		items:      items,
		questions:  questions,
		events:     events,
		thresholds: thresholds,
		logger:     logger,
	}
}

func (uc *ReviewUseCase) Queue(ctx context.Context, onlyNeedsReview bool) ([]domain.ReviewEntry, error) {
	entries, err := uc.repo.ListForReview(ctx, onlyNeedsReview, uc.thresholds.ReviewThreshold)
	if err != nil {
		return nil, fmt.Errorf("list review queue: %w", err)
	}
	return entries, nil
}

func (uc *ReviewUseCase) Status(ctx context.Context, documentID string) (*domain.DocumentView, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	items, err := uc.items.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	questions, err := uc.questions.ListOpenByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list open questions: %w", err)
	}
	events, err := uc.events.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return &domain.DocumentView{
		Document:  *doc,
		Items:     items,
		Questions: questions,
		Events:    events,
	}, nil
}

// Answer applies a clarification answer to exactly the referenced item,
// re-validates that item only, and recomputes the document's review flag
// from the updated item set. Parse/classify/extract are never re-run.
func (uc *ReviewUseCase) Answer(ctx context.Context, questionID, answer string) (*domain.AnswerResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("answer is required"))
	}

	question, err := uc.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if question.Status != domain.QuestionOpen {
		return nil, domain.WrapError(domain.ErrConflict, "answer",
			fmt.Errorf("question %s already answered", questionID))
	}

	item, err := uc.items.GetByID(ctx, question.ItemID)
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	if item.CommittedAt != nil {
		return nil, domain.WrapError(domain.ErrConflict, "answer",
			fmt.Errorf("item %s is committed and immutable", item.ID))
	}

	if err := applyAnswer(item, question.FieldKey, answer); err != nil {
		return nil, err
	}

	outcome := ValidateItem(item)
	item.IsValid = outcome.IsValid
	item.Issues = outcome.Issues
	item.Confidence = outcome.AdjustedConfidence
	item.UpdatedAt = time.Now().UTC()
	if err := uc.items.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("persist item update: %w", err)
	}
	if err := uc.questions.MarkAnswered(ctx, questionID, answer, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("mark question answered: %w", err)
	}

	items, err := uc.items.ListByDocument(ctx, question.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("reload items: %w", err)
	}
	overall := overallConfidence(items)
	review := requiresReview(items, overall, uc.thresholds.ReviewThreshold, uc.thresholds.ItemReviewThreshold)
	status := domain.StatusStaged
	if review {
		status = domain.StatusNeedsReview
	}
	if err := uc.repo.SetConfidence(ctx, question.DocumentID, overall, status); err != nil {
		return nil, fmt.Errorf("persist review decision: %w", err)
	}

	uc.logger.Info("clarification_answered",
		"document_id", question.DocumentID,
		"item_id", item.ID,
		"field", question.FieldKey,
		"requires_review", review,
	)

	return &domain.AnswerResult{
		DocumentID:     question.DocumentID,
		ItemID:         item.ID,
		ItemConfidence: item.Confidence,
		Confidence:     overall,
		RequiresReview: review,
	}, nil
}

// applyAnswer mutates only the field the question targets.
func applyAnswer(item *domain.ExtractedItem, fieldKey, answer string) error {
	switch fieldKey {
	case domain.FieldDescription:
		item.Title = answer
	case domain.FieldUnit:
		item.Unit = answer
	case domain.FieldQuantity, domain.FieldUnitPrice, domain.FieldTotalPrice:
		value, err := strconv.ParseFloat(strings.ReplaceAll(answer, ",", "."), 64)
		if err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "answer",
				fmt.Errorf("field %s needs a number, got %q", fieldKey, answer))
		}
		switch fieldKey {
		case domain.FieldQuantity:
			item.Quantity = &value
		case domain.FieldUnitPrice:
			item.UnitPrice = &value
		case domain.FieldTotalPrice:
			item.TotalPrice = &value
		}
	case domain.FieldVendorID:
		item.VendorID = answer
	case domain.FieldMaterialID:
		item.MaterialID = answer
	default:
		return domain.WrapError(domain.ErrInvalidInput, "answer",
			fmt.Errorf("unknown field key %q", fieldKey))
	}
	return nil
}
