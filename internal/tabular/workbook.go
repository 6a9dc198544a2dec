package tabular

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// ReadWorkbook parses every sheet of an XLSX workbook. Each sheet is one page
// (1-based, in workbook order) and its first non-blank row is the header.
// Citations use the spreadsheet row number as the line.
func (p *Parser) ReadWorkbook(data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	res := &Result{}
	for idx, name := range f.GetSheetList() {
		page := idx + 1
		rows, err := f.GetRows(name)
		if err != nil {
			res.RowErrors = append(res.RowErrors, models.RowError{
				Page:    page,
				Message: fmt.Sprintf("read sheet %q: %v", name, err),
			})
			res.Sheets = append(res.Sheets, Sheet{Name: name, Page: page, Lines: []models.PageLine{}})
			continue
		}

		sheet := Sheet{Name: name, Page: page, Lines: make([]models.PageLine, 0, len(rows))}
		var headers []string
		for i, cells := range rows {
			lineNo := i + 1
			text := strings.Join(cells, "\t")
			sheet.Lines = append(sheet.Lines, models.PageLine{N: lineNo, Text: text})

			if isBlankRecord(cells) {
				continue
			}
			if headers == nil {
				headers = cells
				continue
			}

			item := p.ParseFields(headers, cells, models.Citation{Page: page, LineStart: lineNo, LineEnd: lineNo})
			if item == nil {
				continue
			}
			item.RawText = strings.TrimSpace(text)
			res.Items = append(res.Items, *item)
		}
		res.Sheets = append(res.Sheets, sheet)
	}

	if len(res.Sheets) == 0 {
		return nil, ErrNoHeader
	}
	return res, nil
}
