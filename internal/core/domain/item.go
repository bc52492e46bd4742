package domain

import "time"

type ItemType string

const (
	ItemMaterial ItemType = "material"
	ItemLabor    ItemType = "labor"
	ItemShipping ItemType = "shipping"
	ItemDecision ItemType = "decision"
)

// SourceRef points into the parsed working text of the source document.
type SourceRef struct {
	Page      int `json:"page"`
	SpanStart int `json:"span_start"`
	SpanEnd   int `json:"span_end"`
}

// ExtractedItem is one candidate line item produced by the extract stage.
// RawConfidence is the extraction-time score and never changes; Confidence
// is the effective score after validation penalties and clarification
// answers, always <= RawConfidence at validation time.
type ExtractedItem struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	Type          ItemType   `json:"type"`
	Title         string     `json:"title"`
	VendorName    string     `json:"vendor_name,omitempty"`
	VendorID      string     `json:"vendor_id,omitempty"`
	MaterialName  string     `json:"material_name,omitempty"`
	MaterialID    string     `json:"material_id,omitempty"`
	Quantity      *float64   `json:"quantity,omitempty"`
	Unit          string     `json:"unit,omitempty"`
	UnitPrice     *float64   `json:"unit_price,omitempty"`
	TotalPrice    *float64   `json:"total_price,omitempty"`
	TaxPercent    float64    `json:"tax_percent,omitempty"`
	LeadTimeDays  int        `json:"lead_time_days,omitempty"`
	SourceRef     SourceRef  `json:"source_ref"`
	Evidence      string     `json:"evidence,omitempty"`
	RawConfidence float64    `json:"raw_confidence"`
	Confidence    float64    `json:"confidence"`
	IsValid       bool       `json:"is_valid"`
	Issues        []string   `json:"issues,omitempty"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty"`
	CommittedAt   *time.Time `json:"committed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Validation issue codes.
const (
	IssueMissingDescription = "missing_description"
	IssueInvalidQuantity    = "invalid_quantity"
	IssueInvalidUnitPrice   = "invalid_unit_price"
	IssueInvalidTotalPrice  = "invalid_total_price"
	IssuePriceInconsistency = "price_inconsistency"
)

// ValidationOutcome is the per-item result of the validate stage.
type ValidationOutcome struct {
	IsValid            bool     `json:"is_valid"`
	Issues             []string `json:"issues,omitempty"`
	AdjustedConfidence float64  `json:"adjusted_confidence"`
}

// ExtractionResult is the structured-extraction capability output before
// it is mapped into ExtractedItem rows.
type ExtractionResult struct {
	VendorName   string              `json:"vendor_name"`
	DocumentDate string              `json:"document_date,omitempty"`
	Confidence   float64             `json:"confidence,omitempty"`
	Items        []ExtractedLineItem `json:"items"`
}

type ExtractedLineItem struct {
	Type         ItemType `json:"type,omitempty"`
	Title        string   `json:"title"`
	MaterialName string   `json:"material_name,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	UnitPrice    *float64 `json:"unit_price,omitempty"`
	TotalPrice   *float64 `json:"total_price,omitempty"`
	TaxPercent   float64  `json:"tax_percent,omitempty"`
	LeadTimeDays int      `json:"lead_time_days,omitempty"`
	Evidence     string   `json:"evidence,omitempty"`
	Page         int      `json:"page,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
}

type EntityKind string

const (
	EntityVendor   EntityKind = "vendor"
	EntityMaterial EntityKind = "material"
)

// Candidate is one ranked entity-resolution match.
type Candidate struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// CatalogEntry is a reference-catalog row candidates are ranked against.
type CatalogEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}

func Float(v float64) *float64 { return &v }
