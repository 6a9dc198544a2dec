// Package jobs runs parsing jobs. A run claims the job, reads its source,
// routes it through the tabular or page pipeline, stores the artifact and
// result packs and records the outcome on the job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/internal/blob"
	"github.com/kiranshivaraju/steelsched/internal/cache"
	"github.com/kiranshivaraju/steelsched/internal/chunk"
	"github.com/kiranshivaraju/steelsched/internal/events"
	"github.com/kiranshivaraju/steelsched/internal/extract"
	"github.com/kiranshivaraju/steelsched/internal/pages"
	"github.com/kiranshivaraju/steelsched/internal/store"
	"github.com/kiranshivaraju/steelsched/internal/tabular"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

const (
	statusTTL             = 30 * time.Minute
	defaultArtifactBucket = "parsing"
)

// Deps are the collaborators a Service drives. Store, Blobs, Cache and
// Events are required; the rest default when nil.
type Deps struct {
	Store  store.Store
	Blobs  blob.Store
	Cache  cache.Cache
	Events events.Publisher
	Pages  *pages.Extractor
	Engine *extract.Engine
	Parser *tabular.Parser
}

// Config tunes a Service.
type Config struct {
	ArtifactBucket string
	ChunkBudget    int
	MaxAttempts    int
	Logger         *slog.Logger
}

// Service orchestrates job submission, attempts and stale-job reaping.
type Service struct {
	store  store.Store
	blobs  blob.Store
	cache  cache.Cache
	events events.Publisher
	pages  *pages.Extractor
	engine *extract.Engine
	parser *tabular.Parser

	bucket      string
	chunkBudget int
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a Service.
func NewService(deps Deps, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:       deps.Store,
		blobs:       deps.Blobs,
		cache:       deps.Cache,
		events:      deps.Events,
		pages:       deps.Pages,
		engine:      deps.Engine,
		parser:      deps.Parser,
		bucket:      cfg.ArtifactBucket,
		chunkBudget: cfg.ChunkBudget,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.pages == nil {
		s.pages = pages.NewExtractor(pages.WithLogger(logger))
	}
	if s.engine == nil {
		s.engine = extract.NewEngine(nil, logger)
	}
	if s.parser == nil {
		s.parser = tabular.NewParser(nil)
	}
	if s.bucket == "" {
		s.bucket = defaultArtifactBucket
	}
	if s.chunkBudget <= 0 {
		s.chunkBudget = chunk.DefaultBudget
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = models.DefaultMaxAttempts
	}
	return s
}

// SubmitParams holds the caller-supplied fields of a new job.
type SubmitParams struct {
	SourceRef   string
	Mode        models.JobMode
	ProjectID   *uuid.UUID
	Priority    int
	MaxAttempts int
}

// Submit validates params and creates a queued job. Nothing runs until Run.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*models.Job, error) {
	ref := strings.TrimSpace(p.SourceRef)
	if _, _, err := blob.ParseRef(ref); err != nil {
		return nil, invalid("source_ref must be bucket/path")
	}

	mode := p.Mode
	if mode == "" {
		mode = models.JobModeAuto
	}
	if !mode.Valid() {
		return nil, invalid("mode must be one of auto, text_only, ocr_only, hybrid")
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 0 {
		return nil, invalid("max_attempts must be positive")
	}
	if maxAttempts == 0 {
		maxAttempts = s.maxAttempts
	}

	now := s.now()
	job := &models.Job{
		ID:                 uuid.New(),
		SourceRef:          ref,
		ProjectID:          p.ProjectID,
		Status:             models.JobStatusQueued,
		Mode:               mode,
		MaxAttempts:        maxAttempts,
		Priority:           p.Priority,
		OCRPages:           []int{},
		TextPages:          []int{},
		LowConfidencePages: []int{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, newError(models.ErrCodeStoreFailed, fmt.Errorf("create job: %w", err))
	}
	s.cacheStatus(ctx, job.ID, job.Status)

	s.logger.Info("job submitted", "job_id", job.ID, "source_ref", job.SourceRef, "mode", job.Mode)
	return job, nil
}

// RunResult summarizes one attempt.
type RunResult struct {
	Success        bool                 `json:"success"`
	JobID          uuid.UUID            `json:"job_id"`
	Status         models.JobStatus     `json:"status"`
	Attempt        int                  `json:"attempt"`
	ItemsExtracted *int                 `json:"items_extracted,omitempty"`
	PageCount      *int                 `json:"page_count,omitempty"`
	NeedsReview    bool                 `json:"needs_review"`
	ImportID       *uuid.UUID           `json:"import_id,omitempty"`
	ImportStatus   *models.ImportStatus `json:"import_status,omitempty"`
	ErrorCode      *models.ErrorCode    `json:"error_code,omitempty"`
	ErrorMessage   *string              `json:"error_message,omitempty"`
}

// precheck rejects runs the state machine cannot start.
func precheck(job *models.Job) error {
	switch {
	case job.Status.IsActive():
		return newError(models.ErrCodeAlreadyRunning, nil)
	case job.Status.IsFinished():
		return newError(models.ErrCodeJobFinished, nil)
	case job.Status == models.JobStatusFailed && job.AttemptsExhausted():
		return newError(models.ErrCodeMaxAttempts, nil)
	}
	return nil
}

// Run executes exactly one attempt of the job. A rejected run returns an
// *Error and changes nothing. Once claimed, the attempt always ends with the
// job recorded as completed, partial_completed or failed; pipeline failures
// are reported in the RunResult rather than as an error.
func (s *Service) Run(ctx context.Context, id uuid.UUID) (*RunResult, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if err := precheck(job); err != nil {
		return nil, err
	}

	claimed, err := s.store.ClaimJob(ctx, id, s.now())
	if err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, lookupError(err)
		}
		// Lost the race; report why from the state that won.
		if current, gerr := s.store.GetJob(ctx, id); gerr == nil {
			if perr := precheck(current); perr != nil {
				return nil, perr
			}
		}
		return nil, newError(models.ErrCodeAlreadyRunning, err)
	}

	// The attempt outlives the caller; staleness is the only stop signal.
	ctx = context.WithoutCancel(ctx)
	s.cacheStatus(ctx, id, claimed.Status)

	st := &attempt{
		job:    claimed,
		logger: s.logger.With("job_id", id, "attempt", claimed.AttemptCount),
		status: models.JobStatusFailed,
	}
	st.logger.Info("attempt started", "status", claimed.Status, "mode", claimed.Mode)

	s.execute(ctx, st)
	return s.finish(ctx, st), nil
}

func lookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(models.ErrCodeNotFound, err)
	}
	return newError(models.ErrCodeStoreFailed, err)
}

// finish records the attempt outcome, refreshes the cached status and
// announces finished jobs.
func (s *Service) finish(ctx context.Context, st *attempt) *RunResult {
	res := st.result()

	job, err := s.store.FinishJob(ctx, st.job.ID, st.job.AttemptCount, st.outcome(), s.now())
	if err != nil {
		code := models.ErrCodeStoreFailed
		if errors.Is(err, store.ErrConflict) {
			code = models.ErrCodeStaleHeartbeat
		}
		st.logger.Error("recording attempt outcome failed", "error", err, "error_code", code)
		jerr := newError(code, err)
		res.Success = false
		res.Status = models.JobStatusFailed
		res.ErrorCode = &jerr.Code
		res.ErrorMessage = &jerr.Message
		return res
	}

	s.cacheStatus(ctx, job.ID, job.Status)
	res.Status = job.Status
	res.Success = job.Status.IsFinished()

	if res.Success {
		ev := events.JobCompleted{
			Type:        events.TypeJobCompleted,
			JobID:       job.ID,
			Status:      job.Status,
			ImportID:    job.ImportID,
			NeedsReview: res.NeedsReview,
			OccurredAt:  s.now(),
		}
		if err := s.events.PublishCompleted(ctx, ev); err != nil {
			st.logger.Warn("publish completion event failed", "error", err)
		}
	}

	st.logger.Info("attempt finished",
		"status", job.Status,
		"needs_review", res.NeedsReview,
		"page_count", job.PageCount,
		"error_code", job.ErrorCode,
	)
	return res
}

func (s *Service) cacheStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) {
	if err := s.cache.SetJobStatus(ctx, id, string(status), statusTTL); err != nil {
		s.logger.Debug("cache job status failed", "job_id", id, "error", err)
	}
}

// Job returns the stored job.
func (s *Service) Job(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	return job, nil
}

// Status returns the job status, from the cache when it holds one.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (models.JobStatus, error) {
	if status, found, err := s.cache.GetJobStatus(ctx, id); err == nil && found {
		return models.JobStatus(status), nil
	}
	job, err := s.Job(ctx, id)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, id, job.Status)
	return job.Status, nil
}

// Artifact returns the stored artifact pack JSON of the job's latest attempt.
func (s *Service) Artifact(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return s.pack(ctx, id, func(j *models.Job) *string { return j.ArtifactPath })
}

// Result returns the stored result JSON of the job's latest attempt.
func (s *Service) Result(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return s.pack(ctx, id, func(j *models.Job) *string { return j.ResultPath })
}

func (s *Service) pack(ctx context.Context, id uuid.UUID, ref func(*models.Job) *string) ([]byte, error) {
	job, err := s.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	p := ref(job)
	if p == nil {
		return nil, newError(models.ErrCodeNotFound, nil)
	}
	bucket, key, err := blob.ParseRef(*p)
	if err != nil {
		return nil, newError(models.ErrCodeDownloadFailed, err)
	}
	obj, err := s.blobs.Get(ctx, bucket, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, newError(models.ErrCodeNotFound, err)
	}
	if err != nil {
		return nil, newError(models.ErrCodeDownloadFailed, err)
	}
	return obj.Data, nil
}

// ImportView is a batch with its items.
type ImportView struct {
	Import *models.ImportBatch   `json:"import"`
	Items  []models.ScheduleItem `json:"items"`
}

// Import returns a batch and its items in source order.
func (s *Service) Import(ctx context.Context, id uuid.UUID) (*ImportView, error) {
	batch, err := s.store.GetImport(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	items, err := s.store.ListImportItems(ctx, id)
	if err != nil {
		return nil, newError(models.ErrCodeStoreFailed, err)
	}
	return &ImportView{Import: batch, Items: items}, nil
}
