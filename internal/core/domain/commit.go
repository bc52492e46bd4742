package domain

import "time"

// Canonical table names the commit step writes into.
const (
	TableVendorPrices   = "vendor_prices"
	TablePurchases      = "purchases"
	TableShippingQuotes = "shipping_quotes"
	TablePlanItems      = "plan_items"
)

// CommitResult records what one commit wrote per canonical table. Committing
// an already-committed document yields AlreadyCommitted=true and zero counts.
type CommitResult struct {
	DocumentID       string         `json:"document_id"`
	AlreadyCommitted bool           `json:"already_committed,omitempty"`
	Counts           map[string]int `json:"counts"`
	Summaries        []string       `json:"summaries,omitempty"`
	TraceID          string         `json:"trace_id,omitempty"`
	CommittedAt      time.Time      `json:"committed_at"`
}

func (r *CommitResult) TotalWrites() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}
