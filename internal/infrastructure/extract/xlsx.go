package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// extractXLSX renders each sheet as a title element plus one table element
// holding pipe-joined rows, which keeps column boundaries visible to the
// structured extraction step.
func extractXLSX(r io.Reader) (*domain.ParsedDocument, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	parsed := &domain.ParsedDocument{}
	for sheetIdx, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}

		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, " | "), " |")
			if strings.TrimSpace(line) == "" {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}

		page := sheetIdx + 1
		parsed.Elements = append(parsed.Elements,
			domain.DocElement{Kind: domain.ElementTitle, Text: sheet, Page: page},
			domain.DocElement{Kind: domain.ElementTable, Text: strings.Join(lines, "\n"), Page: page},
		)
	}
	return parsed, nil
}
