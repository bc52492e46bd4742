package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/buildcost/docpipe/internal/core/domain"
)

func extractPDF(r io.Reader) (*domain.ParsedDocument, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	parsed := &domain.ParsedDocument{}
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", pageNum, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, block := range splitBlocks(text) {
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
				Page: pageNum,
			})
		}
	}
	return parsed, nil
}
