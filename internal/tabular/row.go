// Package tabular turns schedule rows into typed ScheduleItems using column
// alias matching, regex normalization and a fixed confidence formula.
// It makes no external calls; output depends only on the input bytes.
package tabular

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Confidence penalties for missing fields and the review threshold.
const (
	penaltyNoFRR     = 0.3
	penaltyNoDFT     = 0.3
	penaltyNoCoating = 0.2
	ReviewThreshold  = 0.75
)

var (
	reIntRun     = regexp.MustCompile(`\d+`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reColumnWord = regexp.MustCompile(`\bcol(?:umns?|s)?\b`)
)

// Parser applies one alias table to rows. The zero value is not usable; see NewParser.
type Parser struct {
	aliases Aliases
}

// NewParser returns a Parser for the given alias table. A nil table selects the defaults.
func NewParser(aliases Aliases) *Parser {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Parser{aliases: aliases}
}

// Aliases returns the table the parser matches headers against.
func (p *Parser) Aliases() Aliases { return p.aliases }

var defaultParser = NewParser(nil)

// ParseRow parses a row using the default alias table.
func ParseRow(row map[string]string, cite models.Citation) *models.ScheduleItem {
	return defaultParser.ParseRow(row, cite)
}

// ParseFields parses a record using the default alias table.
func ParseFields(headers, record []string, cite models.Citation) *models.ScheduleItem {
	return defaultParser.ParseFields(headers, record, cite)
}

// ParseRow maps one header→value row to a ScheduleItem. Headers are taken in
// sorted order, so headers that normalize alike resolve the same way on every
// call; readers with a physical column order use ParseFields instead.
func (p *Parser) ParseRow(row map[string]string, cite models.Citation) *models.ScheduleItem {
	headers := make([]string, 0, len(row))
	for k := range row {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	record := make([]string, len(headers))
	for i, h := range headers {
		record[i] = row[h]
	}
	return p.ParseFields(headers, record, cite)
}

// ParseFields maps one record to a ScheduleItem using the header row of its
// sheet. When several headers normalize to the same name the leftmost
// non-blank column wins. It returns nil when no section column carries a
// value, since such a row cannot describe a member.
func (p *Parser) ParseFields(headers, record []string, cite models.Citation) *models.ScheduleItem {
	n := min(len(headers), len(record))
	norm := make(map[string]string, n)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		v := record[i]
		if t := strings.TrimSpace(v); t != "" {
			parts = append(parts, t)
		}
		nk := NormalizeHeader(headers[i])
		if prev, seen := norm[nk]; seen && strings.TrimSpace(prev) != "" {
			continue
		}
		norm[nk] = v
	}

	section, ok := p.aliases.lookup(norm, FieldSection)
	if !ok {
		return nil
	}

	item := &models.ScheduleItem{
		SectionSizeRaw:        section,
		SectionSizeNormalized: NormalizeSection(section),
		Citation:              cite,
		RawText:               strings.Join(parts, " | "),
	}

	if raw, ok := p.aliases.lookup(norm, FieldFRR); ok {
		item.FRRMinutes, item.FRRFormat = ParseFRR(raw)
	}
	if raw, ok := p.aliases.lookup(norm, FieldDFT); ok {
		item.DFTRequiredMicrons = firstInt(raw)
	}
	if raw, ok := p.aliases.lookup(norm, FieldCoating); ok {
		item.CoatingProduct = &raw
	}
	if raw, ok := p.aliases.lookup(norm, FieldMark); ok {
		item.MemberMark = &raw
	}
	if raw, ok := p.aliases.lookup(norm, FieldElement); ok {
		if kind := ClassifyElement(raw); kind != nil {
			item.ElementType = kind
		} else {
			lower := strings.ToLower(raw)
			item.ElementType = &lower
		}
	} else {
		item.ElementType = ClassifyElement(item.RawText)
	}

	item.Confidence, item.NeedsReview = Score(item.FRRMinutes, item.DFTRequiredMicrons, item.CoatingProduct)
	return item
}

// NormalizeSection strips all whitespace and uppercases a section designation.
// It is idempotent.
func NormalizeSection(s string) string {
	return strings.ToUpper(reWhitespace.ReplaceAllString(s, ""))
}

// ParseFRR takes the first integer run as minutes. A slash-delimited raw value
// is kept verbatim as the format; otherwise the format is "<minutes>/-/-".
func ParseFRR(raw string) (*int, *string) {
	minutes := firstInt(raw)
	if minutes == nil {
		return nil, nil
	}
	format := fmt.Sprintf("%d/-/-", *minutes)
	if trimmed := strings.TrimSpace(raw); strings.Contains(trimmed, "/") {
		format = trimmed
	}
	return minutes, &format
}

// Score applies the confidence formula and the review gate.
func Score(frr, dft *int, coating *string) (float64, bool) {
	conf := 1.0
	if frr == nil {
		conf -= penaltyNoFRR
	}
	if dft == nil {
		conf -= penaltyNoDFT
	}
	if coating == nil {
		conf -= penaltyNoCoating
	}
	if conf < 0 {
		conf = 0
	}
	conf = math.Round(conf*100) / 100

	needsReview := conf < ReviewThreshold || frr == nil || dft == nil || coating == nil
	return conf, needsReview
}

// ClassifyElement maps free text to beam, column or brace by keyword.
func ClassifyElement(text string) *string {
	lower := strings.ToLower(text)
	var kind string
	switch {
	case strings.Contains(lower, "beam"):
		kind = "beam"
	case reColumnWord.MatchString(lower):
		kind = "column"
	case strings.Contains(lower, "brace"):
		kind = "brace"
	default:
		return nil
	}
	return &kind
}

func firstInt(s string) *int {
	m := reIntRun.FindString(s)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}
