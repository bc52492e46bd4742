package extract

import (
	"io"
	"strings"
	"unicode"

	"github.com/buildcost/docpipe/internal/core/domain"
)

const maxTitleLen = 80

func extractPlainText(r io.Reader) (*domain.ParsedDocument, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}

	parsed := &domain.ParsedDocument{}
	for _, block := range splitBlocks(string(data)) {
		kind := domain.ElementParagraph
		switch {
		case looksLikeTable(block):
			kind = domain.ElementTable
		case looksLikeTitle(block):
			kind = domain.ElementTitle
		}
		parsed.Elements = append(parsed.Elements, domain.DocElement{
			Kind: kind,
			Text: block,
			Page: 1,
		})
	}
	return parsed, nil
}

// splitBlocks breaks text on blank lines, keeping line structure inside
// each block.
func splitBlocks(text string) []string {
	blocks := make([]string, 0, 8)
	var current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	flush()
	return blocks
}

func looksLikeTitle(block string) bool {
	if strings.Contains(block, "\n") {
		return false
	}
	trimmed := strings.TrimSpace(block)
	if trimmed == "" || len(trimmed) > maxTitleLen {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	// A short line without sentence punctuation reads as a heading.
	if strings.ContainsAny(trimmed, ".!?") {
		return false
	}
	letters := 0
	upper := 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return false
	}
	return upper*2 >= letters || strings.Count(trimmed, " ") <= 5
}

// looksLikeTable detects delimiter-aligned blocks: CSV rows, pipe tables,
// or runs of multi-space column gaps.
func looksLikeTable(block string) bool {
	lines := strings.Split(block, "\n")
	if len(lines) < 2 {
		return false
	}
	delimited := 0
	for _, line := range lines {
		if strings.Count(line, ",") >= 2 ||
			strings.Count(line, "|") >= 2 ||
			strings.Count(line, "\t") >= 1 ||
			strings.Contains(line, "  ") {
			delimited++
		}
	}
	return delimited*2 >= len(lines)
}
