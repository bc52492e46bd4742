package extract

import (
	"context"
	"fmt"
	"io"

	"github.com/buildcost/docpipe/internal/core/domain"
	"github.com/buildcost/docpipe/internal/core/ports"
)

// MIME types the extractor handles.
const (
	MimePDF  = "application/pdf"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeText = "text/plain"
	MimeCSV  = "text/csv"
	MimeMD   = "text/markdown"
	MimeJSON = "application/json"
)

// Extractor reads a stored document and turns it into structural elements.
// Format handling is local and deterministic; no model calls happen here.
type Extractor struct {
	storage ports.ObjectStorage
}

func New(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (*domain.ParsedDocument, error) {
	blob, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStageFailed, "parse", fmt.Errorf("open document blob: %w", err))
	}
	defer blob.Close()

	var parsed *domain.ParsedDocument
	switch doc.MimeType {
	case MimePDF:
		parsed, err = extractPDF(blob)
	case MimeXLSX:
		parsed, err = extractXLSX(blob)
	case MimeText, MimeCSV, MimeMD, MimeJSON:
		parsed, err = extractPlainText(blob)
	default:
		return nil, domain.WrapError(domain.ErrStageFailed, "parse",
			fmt.Errorf("unsupported mime type %q", doc.MimeType))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrStageFailed, "parse", err)
	}

	parsed.Language = detectLanguage(parsed.Text())
	return parsed, nil
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}
