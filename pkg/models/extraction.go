package models

import "github.com/google/uuid"

// Citation locates an extracted value in the artifact pack. Lines are 1-based and inclusive.
type Citation struct {
	Page      int `json:"page"`
	LineStart int `json:"line_start"`
	LineEnd   int `json:"line_end"`
}

// CitedString is a populated text leaf and where it came from.
type CitedString struct {
	Value    string   `json:"value"`
	Citation Citation `json:"citation"`
}

// CitedNumber is a populated numeric leaf and where it came from.
type CitedNumber struct {
	Value    float64  `json:"value"`
	Citation Citation `json:"citation"`
}

// Totals holds the document-level money figures.
type Totals struct {
	Subtotal *CitedNumber `json:"subtotal"`
	Tax      *CitedNumber `json:"tax"`
	Total    *CitedNumber `json:"total"`
}

// LineItem is one priced or scoped row of a quote or specification.
type LineItem struct {
	Description CitedString  `json:"description"`
	Quantity    *CitedNumber `json:"quantity"`
	Unit        *CitedString `json:"unit"`
	UnitPrice   *CitedNumber `json:"unit_price"`
	Amount      *CitedNumber `json:"amount"`
	Confidence  float64      `json:"confidence"`
}

// ResultWarning is a machine-readable note attached to a result.
type ResultWarning struct {
	Code    string `json:"code"`
	Pages   []int  `json:"pages"`
	Message string `json:"message,omitempty"`
}

// ResultMeta describes how a result was produced.
type ResultMeta struct {
	JobID            uuid.UUID `json:"job_id"`
	Attempt          int       `json:"attempt"`
	PageCount        int       `json:"page_count"`
	ExtractorVersion string    `json:"extractor_version"`
	Backend          string    `json:"backend"`
	Model            string    `json:"model,omitempty"`
	ChunksSent       int       `json:"chunks_sent"`
	ChunksTotal      int       `json:"chunks_total"`
	FallbackReason   ErrorCode `json:"fallback_reason,omitempty"`
}

// ExtractionResult is the schema-shaped structured output of a page job.
// Every populated leaf carries a citation; absent values are nil, never guessed.
type ExtractionResult struct {
	DocumentType *CitedString    `json:"document_type"`
	Title        *CitedString    `json:"title"`
	Supplier     *CitedString    `json:"supplier"`
	Client       *CitedString    `json:"client"`
	ProjectName  *CitedString    `json:"project_name"`
	DocumentDate *CitedString    `json:"document_date"`
	ValidUntil   *CitedString    `json:"valid_until"`
	Currency     *CitedString    `json:"currency"`
	Totals       Totals          `json:"totals"`
	LineItems    []LineItem      `json:"line_items"`
	Terms        []CitedString   `json:"terms"`
	Exclusions   []CitedString   `json:"exclusions"`
	Confidence   float64         `json:"confidence"`
	Warnings     []ResultWarning `json:"warnings"`
	Meta         ResultMeta      `json:"meta"`
}

// HasWarning reports whether a warning with the given code is present.
func (r *ExtractionResult) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
