package chunking

import (
	"strings"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// Packer segments parsed elements into bounded context chunks for the
// extraction call, preferring structural section boundaries over mid-text
// splits. Chunks are transient pipeline state and never persisted.
type Packer struct {
	MaxChars int
}

func NewPacker(maxChars int) *Packer {
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Packer{MaxChars: maxChars}
}

func (p *Packer) Pack(parsed *domain.ParsedDocument) []domain.Chunk {
	if parsed == nil || len(parsed.Elements) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, 0, 4)
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, domain.Chunk{Index: len(chunks), Text: text})
		}
		current.Reset()
	}

	for _, el := range parsed.Elements {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}

		runes := []rune(text)

		// A title starts a new section; prefer breaking here when the
		// current chunk already has content.
		startsSection := el.Kind == domain.ElementTitle && current.Len() > 0

		if startsSection || currentLen(&current)+len(runes)+1 > p.MaxChars {
			flush()
		}

		// Oversized single elements get rune-windowed.
		for len(runes) > p.MaxChars {
			chunks = append(chunks, domain.Chunk{
				Index: len(chunks),
				Text:  strings.TrimSpace(string(runes[:p.MaxChars])),
			})
			runes = runes[p.MaxChars:]
		}

		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(string(runes))
	}
	flush()

	return chunks
}

func currentLen(b *strings.Builder) int {
	return len([]rune(b.String()))
}
