package usecase

import (
	"math"
	"strings"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// Validation penalties. Validation only subtracts from the extraction-time
// confidence; it never inflates it.
const (
	penaltyMissingDescription = 0.2
	penaltyInvalidNumber      = 0.1
	penaltyPriceInconsistency = 0.15
	priceTolerance            = 0.01
)

// ValidateItem applies the deterministic per-item rules against the item's
// raw (extraction-time) confidence. An item is valid iff it has zero issues.
func ValidateItem(item *domain.ExtractedItem) domain.ValidationOutcome {
	issues := make([]string, 0, 2)
	confidence := item.RawConfidence

	if len(strings.TrimSpace(item.Title)) < 2 {
		issues = append(issues, domain.IssueMissingDescription)
		confidence -= penaltyMissingDescription
	}
	if item.Quantity != nil && *item.Quantity < 0 {
		issues = append(issues, domain.IssueInvalidQuantity)
		confidence -= penaltyInvalidNumber
	}
	if item.UnitPrice != nil && *item.UnitPrice < 0 {
		issues = append(issues, domain.IssueInvalidUnitPrice)
		confidence -= penaltyInvalidNumber
	}
	if item.TotalPrice != nil && *item.TotalPrice < 0 {
		issues = append(issues, domain.IssueInvalidTotalPrice)
		confidence -= penaltyInvalidNumber
	}
	if item.Quantity != nil && item.UnitPrice != nil && item.TotalPrice != nil {
		if math.Abs(*item.Quantity**item.UnitPrice-*item.TotalPrice) > priceTolerance {
			issues = append(issues, domain.IssuePriceInconsistency)
			confidence -= penaltyPriceInconsistency
		}
	}

	return domain.ValidationOutcome{
		IsValid:            len(issues) == 0,
		Issues:             issues,
		AdjustedConfidence: clamp01(confidence),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// overallConfidence is the mean of item confidences; an itemless document
// defaults to 0.7 so it still lands in the review queue.
func overallConfidence(items []domain.ExtractedItem) float64 {
	if len(items) == 0 {
		return 0.7
	}
	sum := 0.0
	for _, it := range items {
		sum += it.Confidence
	}
	return sum / float64(len(items))
}

// requiresReview gates auto-commit: any invalid item, any low-confidence
// item, or a low overall score sends the document to review.
func requiresReview(items []domain.ExtractedItem, overall, reviewThreshold, itemThreshold float64) bool {
	if overall < reviewThreshold {
		return true
	}
	for _, it := range items {
		if !it.IsValid || it.Confidence < itemThreshold {
			return true
		}
	}
	return false
}
