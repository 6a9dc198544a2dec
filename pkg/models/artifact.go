package models

import (
	"time"

	"github.com/google/uuid"
)

// PageMethod records how a page's text was obtained.
type PageMethod string

const (
	PageMethodText PageMethod = "text"
	PageMethodOCR  PageMethod = "ocr"
	PageMethodNone PageMethod = "none"
)

// SplitStrategy records how aggregate document text was divided into pages.
type SplitStrategy string

const (
	// SplitNative means the source reported page boundaries itself (sheets, single-page text).
	SplitNative SplitStrategy = "native"
	// SplitMarkers means explicit page-break markers matched the known page count.
	SplitMarkers SplitStrategy = "markers"
	// SplitApproximate means pages are equal-length character slices and
	// line citations are only approximately aligned with physical pages.
	SplitApproximate SplitStrategy = "approximate"
)

// LowConfidenceThreshold: a page at or below this confidence needs review.
const LowConfidenceThreshold = 0.5

// PageLine is one addressable line on a page. N is 1-based.
type PageLine struct {
	N    int    `json:"n"`
	Text string `json:"text"`
}

// PageRecord is the raw extraction output for one page.
type PageRecord struct {
	Page       int        `json:"page"`
	Method     PageMethod `json:"method"`
	Confidence float64    `json:"confidence"`
	Text       string     `json:"text"`
	Lines      []PageLine `json:"lines"`
	WordCount  int        `json:"word_count"`
	CharCount  int        `json:"char_count"` // non-whitespace runes
	Errors     []string   `json:"errors"`
}

// IsLowConfidence reports whether the page must be surfaced for review.
func (p PageRecord) IsLowConfidence() bool {
	return p.Method == PageMethodNone || p.Confidence <= LowConfidenceThreshold
}

// PipelineError is a document-level problem recorded in an artifact pack.
type PipelineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ArtifactPack is the immutable per-attempt record of raw extraction.
type ArtifactPack struct {
	JobID              uuid.UUID       `json:"job_id"`
	Attempt            int             `json:"attempt"`
	SourceRef          string          `json:"source_ref"`
	Format             string          `json:"format"`
	PageCount          int             `json:"page_count"`
	SplitStrategy      SplitStrategy   `json:"split_strategy"`
	Pages              []PageRecord    `json:"pages"`
	LowConfidencePages []int           `json:"low_confidence_pages"`
	Errors             []PipelineError `json:"errors"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ComputeLowConfidencePages returns, in page order, every page that is
// low-confidence. It is the only way LowConfidencePages should be derived.
func ComputeLowConfidencePages(pages []PageRecord) []int {
	out := []int{}
	for _, p := range pages {
		if p.IsLowConfidence() {
			out = append(out, p.Page)
		}
	}
	return out
}

// PagesByMethod returns the page numbers extracted with the given method.
func PagesByMethod(pages []PageRecord, m PageMethod) []int {
	out := []int{}
	for _, p := range pages {
		if p.Method == m {
			out = append(out, p.Page)
		}
	}
	return out
}
