package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportStatus is the review-gated outcome of a schedule import.
type ImportStatus string

const (
	ImportStatusCompleted        ImportStatus = "completed"
	ImportStatusNeedsReview      ImportStatus = "needs_review"
	ImportStatusPartialCompleted ImportStatus = "partial_completed"
	ImportStatusFailed           ImportStatus = "failed"
)

// ScheduleItem is one structural member row recovered from a loading schedule.
// Items are immutable: re-parsing a source creates a new ImportBatch.
type ScheduleItem struct {
	ID                    uuid.UUID `db:"id"                      json:"id"`
	ImportID              uuid.UUID `db:"import_id"               json:"import_id"`
	SectionSizeRaw        string    `db:"section_size_raw"        json:"section_size_raw"`
	SectionSizeNormalized string    `db:"section_size_normalized" json:"section_size_normalized"`
	FRRMinutes            *int      `db:"frr_minutes"             json:"frr_minutes"`
	FRRFormat             *string   `db:"frr_format"              json:"frr_format"`
	CoatingProduct        *string   `db:"coating_product"         json:"coating_product"`
	DFTRequiredMicrons    *int      `db:"dft_required_microns"    json:"dft_required_microns"`
	MemberMark            *string   `db:"member_mark"             json:"member_mark"`
	ElementType           *string   `db:"element_type"            json:"element_type"`
	NeedsReview           bool      `db:"needs_review"            json:"needs_review"`
	Confidence            float64   `db:"confidence"              json:"confidence"`
	Citation              Citation  `db:"-"                       json:"citation"`
	RawText               string    `db:"raw_text"                json:"raw_text,omitempty"`
}

// RowError records a row that could not be read without aborting the import.
type RowError struct {
	Page    int    `json:"page"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportBatch groups the items produced by one parse of one source.
type ImportBatch struct {
	ID             uuid.UUID    `db:"id"              json:"id"`
	JobID          *uuid.UUID   `db:"job_id"          json:"job_id,omitempty"`
	SourceRef      string       `db:"source_ref"      json:"source_ref"`
	SourceFormat   string       `db:"source_format"   json:"source_format"`
	Status         ImportStatus `db:"status"          json:"status"`
	NeedsReview    bool         `db:"needs_review"    json:"needs_review"`
	ItemsExtracted int          `db:"items_extracted" json:"items_extracted"`
	ErrorCode      *ErrorCode   `db:"error_code"      json:"error_code,omitempty"`
	ErrorMessage   *string      `db:"error_message"   json:"error_message,omitempty"`
	RowErrors      []RowError   `db:"row_errors"      json:"row_errors"`
	CreatedAt      time.Time    `db:"created_at"      json:"created_at"`
}
