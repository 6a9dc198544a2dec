// Package review decides whether imported schedule items and extracted
// pages need a human before they are trusted. Every function here is pure.
package review

import "github.com/kiranshivaraju/steelsched/pkg/models"

// Decision is the outcome of a review check.
type Decision struct {
	NeedsReview bool
	Status      models.ImportStatus
}

// DecideImport applies the tabular review gate to the items of one import.
// hardErr reports whether the parse hit an error that stopped it producing rows.
func DecideImport(items []models.ScheduleItem, hardErr bool) Decision {
	flagged := false
	for _, it := range items {
		if it.NeedsReview {
			flagged = true
			break
		}
	}

	switch {
	case len(items) == 0 && hardErr:
		return Decision{NeedsReview: false, Status: models.ImportStatusFailed}
	case len(items) == 0:
		return Decision{NeedsReview: false, Status: models.ImportStatusPartialCompleted}
	case flagged:
		return Decision{NeedsReview: true, Status: models.ImportStatusNeedsReview}
	default:
		return Decision{NeedsReview: false, Status: models.ImportStatusCompleted}
	}
}

// DecidePages derives a page job's status from its artifact pack: failed
// with no pages or an undecodable source, partial_completed with any
// low-confidence page, otherwise completed.
func DecidePages(pack *models.ArtifactPack) Decision {
	if pack == nil || len(pack.Pages) == 0 || undecodable(pack) {
		return Decision{NeedsReview: true, Status: models.ImportStatusFailed}
	}
	if len(models.ComputeLowConfidencePages(pack.Pages)) > 0 {
		return Decision{NeedsReview: true, Status: models.ImportStatusPartialCompleted}
	}
	return Decision{NeedsReview: false, Status: models.ImportStatusCompleted}
}

// undecodable reports whether the source could not be read at all: the
// pipeline recorded EXTRACTION_FAILED and no page holds any text.
func undecodable(pack *models.ArtifactPack) bool {
	failed := false
	for _, e := range pack.Errors {
		if e.Code == string(models.ErrCodeExtractionFailed) {
			failed = true
			break
		}
	}
	if !failed {
		return false
	}
	for _, p := range pack.Pages {
		if p.Method != models.PageMethodNone {
			return false
		}
	}
	return true
}

// JobStatus maps a review status onto the job state machine. The import
// batch keeps the finer needs_review status.
func JobStatus(s models.ImportStatus) models.JobStatus {
	switch s {
	case models.ImportStatusCompleted:
		return models.JobStatusCompleted
	case models.ImportStatusNeedsReview, models.ImportStatusPartialCompleted:
		return models.JobStatusPartialCompleted
	default:
		return models.JobStatusFailed
	}
}
