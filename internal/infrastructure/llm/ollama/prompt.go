package ollama

import (
	"fmt"
	"strings"

	"github.com/buildcost/docpipe/internal/core/domain"
)

func buildClassificationPrompt(text string) string {
	const maxSnippet = 4000
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `You are a document classifier for construction project paperwork.
Return strict JSON object with keys:
label (one of: invoice, quote, purchase_order, receipt, shipping_document, specification, other),
confidence (number from 0 to 1), rationale (string, one sentence).
No markdown, no extra keys.

Document:
` + snippet
}

func buildExtractionPrompt(schema domain.SchemaKind, chunks []domain.Chunk) string {
	var contextBuilder strings.Builder
	for _, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf("[chunk %d]\n%s\n\n", chunk.Index, chunk.Text))
	}

	return fmt.Sprintf(`You extract line items from a business document.
%s
Return strict JSON object with keys:
vendor_name (string), document_date (string, ISO date or empty),
confidence (number from 0 to 1),
items (array of objects with keys: type (one of: material, labor, shipping, decision),
title, material_name, quantity, unit, unit_price, total_price, tax_percent,
lead_time_days, evidence (verbatim source fragment), page, confidence).
Omit unknown numeric fields instead of guessing. Copy evidence verbatim.
No markdown, no extra keys.

Document:
%s`, schemaInstructions(schema), contextBuilder.String())
}

func schemaInstructions(schema domain.SchemaKind) string {
	switch schema {
	case domain.SchemaInvoice:
		return "The document records a completed purchase: capture quantities, unit prices and line totals."
	case domain.SchemaQuote:
		return "The document offers prices: capture unit prices, tax and lead times per material."
	default:
		return "The document type is unknown: capture any priced or quantified line items you can find."
	}
}
