package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a ParsingJob.
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusRunning          JobStatus = "running"
	JobStatusNeedsOCR         JobStatus = "needs_ocr"
	JobStatusRetrying         JobStatus = "retrying"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
	JobStatusPartialCompleted JobStatus = "partial_completed"
)

// JobMode selects how pages are read.
type JobMode string

const (
	JobModeAuto     JobMode = "auto"
	JobModeTextOnly JobMode = "text_only"
	JobModeOCROnly  JobMode = "ocr_only"
	JobModeHybrid   JobMode = "hybrid"
)

// DefaultMaxAttempts is applied when a job is submitted without an explicit limit.
const DefaultMaxAttempts = 3

var validModes = map[JobMode]bool{
	JobModeAuto:     true,
	JobModeTextOnly: true,
	JobModeOCROnly:  true,
	JobModeHybrid:   true,
}

// Valid reports whether m is one of the known modes.
func (m JobMode) Valid() bool { return validModes[m] }

// jobTransitions lists every permitted status change. Claiming a failed job
// is additionally gated on attempt_count < max_attempts by the store.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:   {JobStatusRunning},
	JobStatusFailed:   {JobStatusRetrying},
	JobStatusRunning:  {JobStatusNeedsOCR, JobStatusCompleted, JobStatusPartialCompleted, JobStatusFailed},
	JobStatusRetrying: {JobStatusNeedsOCR, JobStatusCompleted, JobStatusPartialCompleted, JobStatusFailed},
	JobStatusNeedsOCR: {JobStatusCompleted, JobStatusPartialCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionSources lists every status that may move to next, in a stable order.
func TransitionSources(next JobStatus) []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusNeedsOCR, JobStatusRetrying, JobStatusFailed} {
		if from.CanTransition(next) {
			out = append(out, from)
		}
	}
	return out
}

// ActiveStatuses are the statuses in which an attempt owns the job.
var ActiveStatuses = []JobStatus{JobStatusRunning, JobStatusRetrying, JobStatusNeedsOCR}

// IsActive reports whether an attempt currently owns the job.
func (s JobStatus) IsActive() bool {
	return s == JobStatusRunning || s == JobStatusRetrying || s == JobStatusNeedsOCR
}

// IsFinished reports whether the job produced output and can never run again.
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusPartialCompleted
}

// Job is one document submitted for extraction. A job is claimed by exactly
// one attempt at a time; retries reuse the same row and bump AttemptCount.
type Job struct {
	ID                 uuid.UUID  `db:"id"                   json:"id"`
	SourceRef          string     `db:"source_ref"           json:"source_ref"`
	ProjectID          *uuid.UUID `db:"project_id"           json:"project_id,omitempty"`
	Status             JobStatus  `db:"status"               json:"status"`
	Mode               JobMode    `db:"mode"                 json:"mode"`
	AttemptCount       int        `db:"attempt_count"        json:"attempt_count"`
	MaxAttempts        int        `db:"max_attempts"         json:"max_attempts"`
	Priority           int        `db:"priority"             json:"priority"`
	StartedAt          *time.Time `db:"started_at"           json:"started_at,omitempty"`
	FinishedAt         *time.Time `db:"finished_at"          json:"finished_at,omitempty"`
	LastHeartbeatAt    *time.Time `db:"last_heartbeat_at"    json:"last_heartbeat_at,omitempty"`
	PageCount          int        `db:"page_count"           json:"page_count"`
	OCRPages           []int      `db:"ocr_pages"            json:"ocr_pages"`
	TextPages          []int      `db:"text_pages"           json:"text_pages"`
	LowConfidencePages []int      `db:"low_confidence_pages" json:"low_confidence_pages"`
	ArtifactPath       *string    `db:"artifact_path"        json:"artifact_path,omitempty"`
	ResultPath         *string    `db:"result_path"          json:"result_path,omitempty"`
	ImportID           *uuid.UUID `db:"import_id"            json:"import_id,omitempty"`
	ErrorCode          *ErrorCode `db:"error_code"           json:"error_code,omitempty"`
	ErrorMessage       *string    `db:"error_message"        json:"error_message,omitempty"`
	CreatedAt          time.Time  `db:"created_at"           json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"           json:"updated_at"`
}

// AttemptsExhausted reports whether no further attempt may be claimed.
func (j *Job) AttemptsExhausted() bool {
	return j.AttemptCount >= j.MaxAttempts
}

// JobOutcome carries everything recorded when an attempt ends.
type JobOutcome struct {
	Status             JobStatus
	PageCount          int
	OCRPages           []int
	TextPages          []int
	LowConfidencePages []int
	ArtifactPath       *string
	ResultPath         *string
	ImportID           *uuid.UUID
	ErrorCode          *ErrorCode
	ErrorMessage       *string
}
