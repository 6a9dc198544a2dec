package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// ErrConflict means a conditional update lost: the row was not in a status
// that permits the change.
var ErrConflict = errors.New("status conflict")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// ClaimJob atomically moves a queued job to running, or a failed job with
	// attempts left to retrying, incrementing attempt_count and stamping
	// started_at and last_heartbeat_at. Any other status yields ErrConflict.
	ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*models.Job, error)
	// TransitionJob, Heartbeat and FinishJob act only for the attempt that
	// currently owns the job: the job must be active and its attempt_count
	// must equal attempt. A reaped or superseded attempt gets ErrConflict.

	// TransitionJob moves an active job to another active status.
	TransitionJob(ctx context.Context, id uuid.UUID, attempt int, to models.JobStatus, now time.Time) error
	Heartbeat(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error
	// FinishJob records the outcome of an active attempt.
	FinishJob(ctx context.Context, id uuid.UUID, attempt int, outcome models.JobOutcome, now time.Time) (*models.Job, error)
	// FailStaleJobs fails every active job whose heartbeat is older than
	// before and returns their ids.
	FailStaleJobs(ctx context.Context, before time.Time, code models.ErrorCode, message string, now time.Time) ([]uuid.UUID, error)

	CreateImport(ctx context.Context, batch *models.ImportBatch, items []models.ScheduleItem) error
	GetImport(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error)
	ListImportItems(ctx context.Context, importID uuid.UUID) ([]models.ScheduleItem, error)
}

func isFinal(s models.JobStatus) bool {
	return s == models.JobStatusCompleted || s == models.JobStatusPartialCompleted || s == models.JobStatusFailed
}
