package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// Extractor populates the structured schema for a document. The chunks are
// joined into a single prompt; Ollama is called once per document.
type Extractor struct {
	client *Client
}

func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

func (e *Extractor) ExtractStructured(ctx context.Context, schema domain.SchemaKind, chunks []domain.Chunk) (*domain.ExtractionResult, error) {
	respText, err := e.client.generateJSON(ctx, "extract", buildExtractionPrompt(schema, chunks))
	if err != nil {
		return nil, err
	}

	var result domain.ExtractionResult
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return nil, fmt.Errorf("parse extraction json: %w", err)
	}
	if result.Items == nil {
		result.Items = []domain.ExtractedLineItem{}
	}
	for i := range result.Items {
		if result.Items[i].Type == "" {
			result.Items[i].Type = domain.ItemMaterial
		}
	}
	return &result, nil
}
