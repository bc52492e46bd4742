package domain

import "time"

type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionAnswered QuestionStatus = "answered"
)

// Clarification field keys an answer may target.
const (
	FieldDescription = "description"
	FieldQuantity    = "quantity"
	FieldUnit        = "unit"
	FieldUnitPrice   = "unit_price"
	FieldTotalPrice  = "total_price"
	FieldVendorID    = "vendor_id"
	FieldMaterialID  = "material_id"
)

// ClarificationQuestion asks a human to resolve one field on one item.
type ClarificationQuestion struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	ItemID     string         `json:"item_id"`
	FieldKey   string         `json:"field_key"`
	Question   string         `json:"question"`
	Status     QuestionStatus `json:"status"`
	Answer     string         `json:"answer,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	AnsweredAt *time.Time     `json:"answered_at,omitempty"`
}

// AnswerResult reports the document state after a clarification answer.
type AnswerResult struct {
	DocumentID     string  `json:"document_id"`
	ItemID         string  `json:"item_id"`
	ItemConfidence float64 `json:"item_confidence"`
	Confidence     float64 `json:"confidence"`
	RequiresReview bool    `json:"requires_review"`
}

// ReviewEntry is one review-queue listing row.
type ReviewEntry struct {
	Document           Document `json:"document"`
	ItemCount          int      `json:"item_count"`
	InvalidCount       int      `json:"invalid_count"`
	LowConfidenceCount int      `json:"low_confidence_count"`
	OpenQuestions      int      `json:"open_questions"`
}

// DocumentView is the full status-query payload for one document.
type DocumentView struct {
	Document  Document                `json:"document"`
	Items     []ExtractedItem         `json:"items"`
	Questions []ClarificationQuestion `json:"questions,omitempty"`
	Events    []IngestEvent           `json:"events,omitempty"`
}
