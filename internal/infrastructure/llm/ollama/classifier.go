package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/buildcost/docpipe/internal/core/domain"
)

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	respText, err := c.client.generateJSON(ctx, "classify", buildClassificationPrompt(text))
	if err != nil {
		return domain.Classification{}, err
	}

	var raw struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &raw); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classification json: %w", err)
	}

	label := domain.DocumentType(raw.Label)
	if !isKnownType(label) {
		return domain.Classification{}, fmt.Errorf("classifier returned unknown label %q", raw.Label)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return domain.Classification{}, fmt.Errorf("classifier confidence %v out of range", raw.Confidence)
	}
	return domain.Classification{
		Label:      label,
		Confidence: raw.Confidence,
		Rationale:  raw.Rationale,
	}, nil
}

func isKnownType(t domain.DocumentType) bool {
	for _, known := range domain.KnownDocumentTypes() {
		if t == known {
			return true
		}
	}
	return false
}
