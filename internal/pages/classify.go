package pages

import (
	"strings"
	"unicode"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Classification thresholds, applied in order.
const (
	minNonSpaceChars = 50
	minWords         = 10
	fullTextWords    = 30

	ConfidenceNone    = 0.0
	ConfidencePartial = 0.5
	ConfidenceFull    = 1.0
)

// Classify decides how trustworthy a page's text is:
//   - fewer than 50 non-whitespace characters or fewer than 10 words: none, 0.0
//   - fewer than 30 words: text, 0.5
//   - otherwise: text, 1.0
func Classify(text string) (models.PageMethod, float64) {
	words := CountWords(text)
	if CountNonSpace(text) < minNonSpaceChars || words < minWords {
		return models.PageMethodNone, ConfidenceNone
	}
	if words < fullTextWords {
		return models.PageMethodText, ConfidencePartial
	}
	return models.PageMethodText, ConfidenceFull
}

// CountWords counts whitespace-separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountNonSpace counts runes that are not whitespace.
func CountNonSpace(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// SplitLines numbers a page's lines from 1. Trailing whitespace is trimmed
// but blank lines are kept so numbering is stable for a given text.
func SplitLines(text string) []models.PageLine {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if strings.TrimSpace(text) == "" {
		return []models.PageLine{}
	}
	parts := strings.Split(text, "\n")
	lines := make([]models.PageLine, len(parts))
	for i, p := range parts {
		lines[i] = models.PageLine{N: i + 1, Text: strings.TrimRightFunc(p, unicode.IsSpace)}
	}
	return lines
}

// NewPageRecord classifies text and builds a PageRecord for it.
func NewPageRecord(page int, text string) models.PageRecord {
	method, confidence := Classify(text)
	return models.PageRecord{
		Page:       page,
		Method:     method,
		Confidence: confidence,
		Text:       text,
		Lines:      SplitLines(text),
		WordCount:  CountWords(text),
		CharCount:  CountNonSpace(text),
		Errors:     []string{},
	}
}
