package pages

import (
	"strings"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// PageBreak separates pages in aggregate document text.
const PageBreak = "\f"

// Splitter divides aggregate text into exactly pageCount page slices.
// ok is false when the strategy does not apply to this text.
type Splitter interface {
	Strategy() models.SplitStrategy
	Split(text string, pageCount int) (pages []string, ok bool)
}

// MarkerSplitter splits on form feeds, but only when the number of markers
// agrees with the page count.
type MarkerSplitter struct{}

func (MarkerSplitter) Strategy() models.SplitStrategy { return models.SplitMarkers }

func (MarkerSplitter) Split(text string, pageCount int) ([]string, bool) {
	if pageCount < 1 {
		pageCount = 1
	}
	if strings.Count(text, PageBreak)+1 != pageCount {
		return nil, false
	}
	return strings.Split(text, PageBreak), true
}

// ApproximatePageSplitter slices text into equal runs of ceil(runes/pageCount)
// characters. Page boundaries are an estimate: a line may straddle two pages
// and citations into such pages are only approximately aligned with the
// physical document. It always applies.
type ApproximatePageSplitter struct{}

func (ApproximatePageSplitter) Strategy() models.SplitStrategy { return models.SplitApproximate }

func (ApproximatePageSplitter) Split(text string, pageCount int) ([]string, bool) {
	if pageCount < 1 {
		pageCount = 1
	}
	runes := []rune(strings.ReplaceAll(text, PageBreak, "\n"))
	size := (len(runes) + pageCount - 1) / pageCount

	out := make([]string, pageCount)
	for i := 0; i < pageCount; i++ {
		start := i * size
		if start >= len(runes) {
			break
		}
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out[i] = string(runes[start:end])
	}
	return out, true
}

// DefaultSplitters is the preference order: exact markers first.
var DefaultSplitters = []Splitter{MarkerSplitter{}, ApproximatePageSplitter{}}

// SplitPages applies the first splitter that accepts the text.
func SplitPages(text string, pageCount int, splitters []Splitter) ([]string, models.SplitStrategy) {
	for _, s := range splitters {
		if pages, ok := s.Split(text, pageCount); ok {
			return pages, s.Strategy()
		}
	}
	pages, _ := ApproximatePageSplitter{}.Split(text, pageCount)
	return pages, models.SplitApproximate
}
