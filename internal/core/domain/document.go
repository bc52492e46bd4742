package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded    DocumentStatus = "uploaded"
	StatusParsing     DocumentStatus = "parsing"
	StatusClassified  DocumentStatus = "classified"
	StatusPacked      DocumentStatus = "packed"
	StatusExtracted   DocumentStatus = "extracted"
	StatusValidated   DocumentStatus = "validated"
	StatusLinked      DocumentStatus = "linked"
	StatusStaged      DocumentStatus = "staged"
	StatusNeedsReview DocumentStatus = "needs_review"
	StatusCommitted   DocumentStatus = "committed"
	StatusFailed      DocumentStatus = "failed"
)

// DocumentType is the closed classification taxonomy.
type DocumentType string

const (
	TypeInvoice       DocumentType = "invoice"
	TypeQuote         DocumentType = "quote"
	TypePurchaseOrder DocumentType = "purchase_order"
	TypeReceipt       DocumentType = "receipt"
	TypeShippingDoc   DocumentType = "shipping_document"
	TypeSpecification DocumentType = "specification"
	TypeOther         DocumentType = "other"
)

func KnownDocumentTypes() []DocumentType {
	return []DocumentType{
		TypeInvoice, TypeQuote, TypePurchaseOrder, TypeReceipt,
		TypeShippingDoc, TypeSpecification, TypeOther,
	}
}

type Document struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	MimeType         string         `json:"mime_type"`
	SizeBytes        int64          `json:"size_bytes"`
	ContentHash      string         `json:"content_hash"`
	StoragePath      string         `json:"storage_path"`
	DetectedType     DocumentType   `json:"detected_type,omitempty"`
	DetectedLanguage string         `json:"detected_language,omitempty"`
	Confidence       float64        `json:"confidence,omitempty"`
	ProjectID        string         `json:"project_id,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Status           DocumentStatus `json:"status"`
	Error            string         `json:"error,omitempty"`
	CommittedAt      *time.Time     `json:"committed_at,omitempty"`
	DeletedAt        *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Classification is the output of the classify capability.
type Classification struct {
	Label      DocumentType `json:"label"`
	Confidence float64      `json:"confidence"`
	Rationale  string       `json:"rationale,omitempty"`
}

type ElementKind string

const (
	ElementTitle     ElementKind = "title"
	ElementParagraph ElementKind = "paragraph"
	ElementTable     ElementKind = "table"
)

// DocElement is one structural unit returned by text extraction.
type DocElement struct {
	Kind ElementKind `json:"kind"`
	Text string      `json:"text"`
	Page int         `json:"page"`
}

// ParsedDocument is the parse-stage output: structural elements plus a
// language hint. The concatenated working text is derived on demand and
// never persisted.
type ParsedDocument struct {
	Elements []DocElement `json:"elements"`
	Language string       `json:"language,omitempty"`
}

func (p *ParsedDocument) Text() string {
	if p == nil || len(p.Elements) == 0 {
		return ""
	}
	out := make([]byte, 0, 1024)
	for i, el := range p.Elements {
		if i > 0 {
			out = append(out, '\n', '\n')
		}
		out = append(out, el.Text...)
	}
	return string(out)
}

// Chunk is one bounded context window produced by the pack stage.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// SchemaKind selects the structured-extraction schema variant. Schemas are
// a closed set picked from a lookup table keyed by document type, never
// built at call time.
type SchemaKind string

const (
	SchemaInvoice SchemaKind = "invoice"
	SchemaQuote   SchemaKind = "quote"
	SchemaGeneric SchemaKind = "generic"
)

// SchemaForType maps a classified document type to its extraction schema.
func SchemaForType(t DocumentType) SchemaKind {
	switch t {
	case TypeInvoice, TypeReceipt, TypePurchaseOrder:
		return SchemaInvoice
	case TypeQuote:
		return SchemaQuote
	default:
		return SchemaGeneric
	}
}
