package tabular

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Loading-schedule vocabulary, compiled once at package init.
var (
	reSection    = regexp.MustCompile(`(?i)\b(\d+(?:x\d+(?:x\d+)?)?(?:UB|UC|WB|SHS|RHS|CHS|FB|WC|CWB)\d*)\b`)
	reFRR        = regexp.MustCompile(`(?i)(?:^|\s)R?(\d+)((?:/\d+){0,2})(?:\s|$|min)`)
	reDFT        = regexp.MustCompile(`(?i)\b(\d{2,4})\s*(?:microns?|μm|um)?\b`)
	reMemberMark = regexp.MustCompile(`\b([A-Z]{1,3}\d+[A-Z]?)\b`)
	reShortDigit = regexp.MustCompile(`^\d{1,2}$`)

	coatingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(Nullifire\s+\w+)`),
		regexp.MustCompile(`(?i)(Carboline\s+\w+)`),
		regexp.MustCompile(`(?i)(Steelguard\s+\w+)`),
		regexp.MustCompile(`(?i)(Chartek\s+\w+)`),
		regexp.MustCompile(`(?i)(Isolatek\s+\w+)`),
		regexp.MustCompile(`(?i)(\w+fire\s+\w+)`),
	}
)

// Plausible ranges for values found in free text.
const (
	minFRRMinutes = 30
	maxFRRMinutes = 240
	minDFTMicrons = 300
	maxDFTMicrons = 3000
	minRowLength  = 10
)

// ScanLine reads a loading-schedule row from free text such as a PDF line.
// It returns nil unless the text names a section and a plausible FRR.
func ScanLine(text string, cite models.Citation) *models.ScheduleItem {
	text = strings.TrimSpace(text)
	if len(text) < minRowLength {
		return nil
	}

	section := reSection.FindStringSubmatch(text)
	if section == nil {
		return nil
	}
	frr, frrFormat := scanFRR(text)
	if frr == nil {
		return nil
	}

	item := &models.ScheduleItem{
		SectionSizeRaw:        section[1],
		SectionSizeNormalized: NormalizeSection(section[1]),
		FRRMinutes:            frr,
		FRRFormat:             frrFormat,
		DFTRequiredMicrons:    scanDFT(text),
		CoatingProduct:        scanCoating(text),
		ElementType:           ClassifyElement(text),
		Citation:              cite,
		RawText:               text,
	}
	if m := reMemberMark.FindStringSubmatch(text); m != nil {
		mark := m[1]
		item.MemberMark = &mark
	}

	item.Confidence, item.NeedsReview = Score(item.FRRMinutes, item.DFTRequiredMicrons, item.CoatingProduct)
	return item
}

// ScanPages runs ScanLine over every line of every page, after stitching
// short numeric fragments back onto the line they were split from.
func ScanPages(pages []models.PageRecord) []models.ScheduleItem {
	items := []models.ScheduleItem{}
	for _, page := range pages {
		for _, row := range stitchLines(page.Lines) {
			cite := models.Citation{Page: page.Page, LineStart: row.start, LineEnd: row.end}
			if item := ScanLine(row.text, cite); item != nil {
				items = append(items, *item)
			}
		}
	}
	return items
}

// stitchedRow is a logical row built from one or more physical lines.
type stitchedRow struct {
	text  string
	start int
	end   int
}

// stitchLines joins lines that are only one or two digits onto the previous
// line, repairing values that the text layer broke across rows ("10" + "0").
// A leading fragment with nothing to attach to is dropped.
func stitchLines(lines []models.PageLine) []stitchedRow {
	var out []stitchedRow
	var buf *stitchedRow

	for _, l := range lines {
		text := strings.TrimSpace(l.Text)
		if text == "" {
			continue
		}
		if reShortDigit.MatchString(text) {
			if buf != nil {
				buf.text += " " + text
				buf.end = l.N
			}
			continue
		}
		if buf != nil {
			out = append(out, *buf)
		}
		buf = &stitchedRow{text: text, start: l.N, end: l.N}
	}
	if buf != nil {
		out = append(out, *buf)
	}
	return out
}

// scanFRR returns the first FRR within the plausible range. A slash triple
// keeps its raw form as the format.
func scanFRR(text string) (*int, *string) {
	for _, m := range reFRR.FindAllStringSubmatch(text, -1) {
		minutes, err := strconv.Atoi(m[1])
		if err != nil || minutes < minFRRMinutes || minutes > maxFRRMinutes {
			continue
		}
		format := strconv.Itoa(minutes) + "/-/-"
		if m[2] != "" {
			format = m[1] + m[2]
		}
		return &minutes, &format
	}
	return nil, nil
}

func scanDFT(text string) *int {
	for _, m := range reDFT.FindAllStringSubmatch(text, -1) {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if v >= minDFTMicrons && v <= maxDFTMicrons {
			return &v
		}
	}
	return nil
}

func scanCoating(text string) *string {
	for _, re := range coatingPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			product := m[1]
			return &product
		}
	}
	return nil
}
