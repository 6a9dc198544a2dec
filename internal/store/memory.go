package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// MemoryStore is an in-process Store for the CLI and tests. Every status
// change is a check-and-set under one mutex, mirroring the conditional
// updates of PostgresStore.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.Job
	imports map[uuid.UUID]*models.ImportBatch
	items   map[uuid.UUID][]models.ScheduleItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[uuid.UUID]*models.Job),
		imports: make(map[uuid.UUID]*models.ImportBatch),
		items:   make(map[uuid.UUID][]models.ScheduleItem),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func cloneInts(v []int) []int {
	out := make([]int, len(v))
	copy(out, v)
	return out
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	c.OCRPages = cloneInts(j.OCRPages)
	c.TextPages = cloneInts(j.TextPages)
	c.LowConfidencePages = cloneInts(j.LowConfidencePages)
	return &c
}

func timePtr(t time.Time) *time.Time { return &t }

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("create job %s: already exists", job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) ClaimJob(_ context.Context, id uuid.UUID, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch {
	case j.Status == models.JobStatusQueued:
		j.Status = models.JobStatusRunning
	case j.Status == models.JobStatusFailed && j.AttemptCount < j.MaxAttempts:
		j.Status = models.JobStatusRetrying
	default:
		return nil, ErrConflict
	}
	j.AttemptCount++
	j.StartedAt = timePtr(now)
	j.LastHeartbeatAt = timePtr(now)
	j.FinishedAt = nil
	j.ErrorCode = nil
	j.ErrorMessage = nil
	j.UpdatedAt = now
	return cloneJob(j), nil
}

func (s *MemoryStore) TransitionJob(_ context.Context, id uuid.UUID, attempt int, to models.JobStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !owns(j, attempt) || !to.IsActive() || !j.Status.CanTransition(to) {
		return ErrConflict
	}
	j.Status = to
	j.LastHeartbeatAt = timePtr(now)
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Heartbeat(_ context.Context, id uuid.UUID, attempt int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !owns(j, attempt) {
		return ErrConflict
	}
	j.LastHeartbeatAt = timePtr(now)
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) FinishJob(_ context.Context, id uuid.UUID, attempt int, o models.JobOutcome, now time.Time) (*models.Job, error) {
	if !isFinal(o.Status) {
		return nil, fmt.Errorf("finish job with status %s: %w", o.Status, ErrConflict)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !owns(j, attempt) {
		return nil, ErrConflict
	}
	j.Status = o.Status
	j.FinishedAt = timePtr(now)
	j.LastHeartbeatAt = timePtr(now)
	j.UpdatedAt = now
	j.PageCount = o.PageCount
	j.OCRPages = cloneInts(o.OCRPages)
	j.TextPages = cloneInts(o.TextPages)
	j.LowConfidencePages = cloneInts(o.LowConfidencePages)
	j.ArtifactPath = o.ArtifactPath
	j.ResultPath = o.ResultPath
	j.ImportID = o.ImportID
	j.ErrorCode = o.ErrorCode
	j.ErrorMessage = o.ErrorMessage
	return cloneJob(j), nil
}

// owns reports whether attempt is the live attempt of j.
func owns(j *models.Job, attempt int) bool {
	return j.Status.IsActive() && j.AttemptCount == attempt
}

func (s *MemoryStore) FailStaleJobs(_ context.Context, before time.Time, code models.ErrorCode, message string, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []uuid.UUID{}
	for id, j := range s.jobs {
		if !j.Status.IsActive() || j.LastHeartbeatAt == nil || !j.LastHeartbeatAt.Before(before) {
			continue
		}
		j.Status = models.JobStatusFailed
		j.FinishedAt = timePtr(now)
		j.UpdatedAt = now
		j.ErrorCode = models.ErrorCodePtr(code)
		msg := message
		j.ErrorMessage = &msg
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })
	return ids, nil
}

func (s *MemoryStore) CreateImport(_ context.Context, batch *models.ImportBatch, items []models.ScheduleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.imports[batch.ID]; ok {
		return fmt.Errorf("create import batch %s: already exists", batch.ID)
	}
	b := *batch
	b.RowErrors = append([]models.RowError{}, batch.RowErrors...)
	s.imports[batch.ID] = &b

	stored := make([]models.ScheduleItem, len(items))
	for i, it := range items {
		it.ImportID = batch.ID
		stored[i] = it
	}
	s.items[batch.ID] = stored
	return nil
}

func (s *MemoryStore) GetImport(_ context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.imports[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *b
	c.RowErrors = append([]models.RowError{}, b.RowErrors...)
	return &c, nil
}

func (s *MemoryStore) ListImportItems(_ context.Context, importID uuid.UUID) ([]models.ScheduleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ScheduleItem{}, s.items[importID]...), nil
}

var _ Store = (*MemoryStore)(nil)
