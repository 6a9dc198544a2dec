package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// ErrNoHeader is returned when a source has no header row to match aliases against.
var ErrNoHeader = errors.New("tabular: no header row")

// candidateDelimiters in tie-break order.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// Sheet is one page of tabular source: its raw rows keyed by line number.
type Sheet struct {
	Name  string
	Page  int
	Lines []models.PageLine
}

// Result is the outcome of reading one tabular source.
type Result struct {
	Items     []models.ScheduleItem
	RowErrors []models.RowError
	Sheets    []Sheet
}

// PageCount returns how many pages (sheets) the source produced.
func (r *Result) PageCount() int { return len(r.Sheets) }

// DetectDelimiter picks the candidate that appears most often outside quotes
// in the header line. Comma wins ties and empty input.
func DetectDelimiter(header string) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range header {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for _, d := range candidateDelimiters {
			if r == d {
				counts[d]++
			}
		}
	}

	best := ','
	for _, d := range candidateDelimiters {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// LooksDelimited reports whether data starts with a delimited header naming a
// section column, which is how plain .txt sources are routed to this parser.
func (p *Parser) LooksDelimited(data []byte) bool {
	header := firstLine(stripBOM(data))
	if header == "" {
		return false
	}
	delim := DetectDelimiter(header)
	if !strings.ContainsRune(header, delim) {
		return false
	}
	r := csv.NewReader(strings.NewReader(header))
	r.Comma = delim
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil || len(fields) < 2 {
		return false
	}
	return p.aliases.HasField(fields, FieldSection)
}

// ReadDelimited parses CSV/TSV-style data. Citations are page 1 and the
// physical line number, with the header on line 1. A malformed row is
// recorded in RowErrors and does not abort the file.
func (p *Parser) ReadDelimited(data []byte) (*Result, error) {
	data = stripBOM(data)
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}

	header := firstLine(data)
	if strings.TrimSpace(header) == "" {
		return nil, ErrNoHeader
	}

	res := &Result{
		Sheets: []Sheet{{Name: "sheet1", Page: 1, Lines: physicalLines(data)}},
	}
	rawLines := res.Sheets[0].Lines

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = DetectDelimiter(header)
	r.FieldsPerRecord = -1
	// Leading-space trimming would swallow empty tab-separated fields.
	r.TrimLeadingSpace = r.Comma != '\t'

	var headers []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.RowErrors = append(res.RowErrors, models.RowError{
					Page:    1,
					Line:    perr.StartLine,
					Message: fmt.Sprintf("malformed row: %v", perr.Err),
				})
				continue
			}
			return nil, fmt.Errorf("read delimited: %w", err)
		}

		line, _ := r.FieldPos(0)
		if headers == nil {
			headers = record
			continue
		}
		if isBlankRecord(record) {
			continue
		}

		item := p.ParseFields(headers, record, models.Citation{Page: 1, LineStart: line, LineEnd: line})
		if item == nil {
			continue
		}
		if line >= 1 && line <= len(rawLines) {
			item.RawText = strings.TrimSpace(rawLines[line-1].Text)
		}
		res.Items = append(res.Items, *item)
	}

	if headers == nil {
		return nil, ErrNoHeader
	}
	return res, nil
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
}

func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	return strings.TrimRight(string(data), "\r")
}

// physicalLines numbers every line of data from 1, keeping blank lines so
// numbering matches what an editor shows.
func physicalLines(data []byte) []models.PageLine {
	text := strings.TrimRight(string(data), "\r\n")
	if text == "" {
		return []models.PageLine{}
	}
	parts := strings.Split(text, "\n")
	lines := make([]models.PageLine, len(parts))
	for i, p := range parts {
		lines[i] = models.PageLine{N: i + 1, Text: strings.TrimRight(p, "\r")}
	}
	return lines
}
