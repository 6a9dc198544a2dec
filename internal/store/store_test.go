package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kiranshivaraju/steelsched/internal/store"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("steelsched_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	// Applying twice is a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func TestPostgresStore_JobLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	job := newJob(2)
	projectID := uuid.New()
	job.ProjectID = &projectID
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, projectID, *got.ProjectID)
	assert.Empty(t, got.OCRPages)

	now := time.Now().UTC().Truncate(time.Microsecond)
	claimed, err := s.ClaimJob(ctx, job.ID, now)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.AttemptCount)
	assert.True(t, claimed.StartedAt.Equal(now))

	_, err = s.ClaimJob(ctx, job.ID, now)
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.TransitionJob(ctx, job.ID, 1, models.JobStatusNeedsOCR, now))
	require.NoError(t, s.Heartbeat(ctx, job.ID, 1, now.Add(time.Second)))

	artifact := "artifacts/" + job.ID.String() + "/artifact.json"
	done, err := s.FinishJob(ctx, job.ID, 1, models.JobOutcome{
		Status:             models.JobStatusPartialCompleted,
		PageCount:          3,
		OCRPages:           []int{2},
		TextPages:          []int{1, 3},
		LowConfidencePages: []int{2},
		ArtifactPath:       &artifact,
	}, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPartialCompleted, done.Status)
	assert.Equal(t, []int{1, 3}, done.TextPages)
	assert.Equal(t, artifact, *done.ArtifactPath)

	_, err = s.ClaimJob(ctx, job.ID, now)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ClaimJob(ctx, uuid.New(), now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresStore_RetryUntilExhausted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(2)
	require.NoError(t, s.CreateJob(ctx, job))

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := s.ClaimJob(ctx, job.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, attempt, claimed.AttemptCount)
		if attempt == 2 {
			assert.Equal(t, models.JobStatusRetrying, claimed.Status)
		}
		failed, err := s.FinishJob(ctx, job.ID, attempt, failedOutcome(), time.Now())
		require.NoError(t, err)
		assert.Equal(t, models.ErrCodeExtractionFailed, *failed.ErrorCode)
	}

	_, err := s.ClaimJob(ctx, job.ID, time.Now())
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestPostgresStore_SupersededAttemptIsFenced(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	job := newJob(3)
	require.NoError(t, s.CreateJob(ctx, job))
	_, err := s.ClaimJob(ctx, job.ID, base.Add(-time.Hour))
	require.NoError(t, err)
	ids, err := s.FailStaleJobs(ctx, base, models.ErrCodeStaleHeartbeat, "heartbeat expired", base)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{job.ID}, ids)
	_, err = s.ClaimJob(ctx, job.ID, base)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Heartbeat(ctx, job.ID, 1, base), store.ErrConflict)
	assert.ErrorIs(t, s.TransitionJob(ctx, job.ID, 1, models.JobStatusNeedsOCR, base), store.ErrConflict)
	_, err = s.FinishJob(ctx, job.ID, 1, models.JobOutcome{Status: models.JobStatusCompleted}, base)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRetrying, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
}

func TestPostgresStore_ConcurrentClaim(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(3)
	require.NoError(t, s.CreateJob(ctx, job))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ClaimJob(ctx, job.ID, time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPostgresStore_FailStaleJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC()

	stale, fresh := newJob(3), newJob(3)
	require.NoError(t, s.CreateJob(ctx, stale))
	require.NoError(t, s.CreateJob(ctx, fresh))
	_, err := s.ClaimJob(ctx, stale.ID, base.Add(-time.Hour))
	require.NoError(t, err)
	_, err = s.ClaimJob(ctx, fresh.ID, base)
	require.NoError(t, err)

	ids, err := s.FailStaleJobs(ctx, base.Add(-10*time.Minute), models.ErrCodeStaleHeartbeat, "heartbeat expired", base)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{stale.ID}, ids)

	got, err := s.GetJob(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.ErrCodeStaleHeartbeat, *got.ErrorCode)
}

func TestPostgresStore_Imports(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(3)
	require.NoError(t, s.CreateJob(ctx, job))

	frr, dft := 90, 425
	format, coating := "90/-/-", "SC601"
	batch := &models.ImportBatch{
		ID:             uuid.New(),
		JobID:          &job.ID,
		SourceRef:      job.SourceRef,
		SourceFormat:   "csv",
		Status:         models.ImportStatusCompleted,
		ItemsExtracted: 1,
		RowErrors:      []models.RowError{{Page: 1, Line: 3, Message: "extraneous quote"}},
		CreatedAt:      time.Now().UTC(),
	}
	items := []models.ScheduleItem{{
		ID:                    uuid.New(),
		SectionSizeRaw:        "610UB125",
		SectionSizeNormalized: "610UB125",
		FRRMinutes:            &frr,
		FRRFormat:             &format,
		CoatingProduct:        &coating,
		DFTRequiredMicrons:    &dft,
		Confidence:            1.0,
		Citation:              models.Citation{Page: 1, LineStart: 2, LineEnd: 2},
		RawText:               "610UB125,90,425,SC601",
	}}
	require.NoError(t, s.CreateImport(ctx, batch, items))

	got, err := s.GetImport(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, *got.JobID)
	assert.Equal(t, batch.RowErrors, got.RowErrors)

	stored, err := s.ListImportItems(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, batch.ID, stored[0].ImportID)
	assert.Equal(t, 90, *stored[0].FRRMinutes)
	assert.Equal(t, models.Citation{Page: 1, LineStart: 2, LineEnd: 2}, stored[0].Citation)
	assert.Nil(t, stored[0].MemberMark)

	_, err = s.GetImport(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
