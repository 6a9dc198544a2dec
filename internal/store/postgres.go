package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, source_ref, project_id, status, mode, attempt_count, max_attempts, priority,
	started_at, finished_at, last_heartbeat_at, page_count, ocr_pages, text_pages, low_confidence_pages,
	artifact_path, result_path, import_id, error_code, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.SourceRef, &j.ProjectID, &j.Status, &j.Mode, &j.AttemptCount, &j.MaxAttempts, &j.Priority,
		&j.StartedAt, &j.FinishedAt, &j.LastHeartbeatAt, &j.PageCount, &j.OCRPages, &j.TextPages, &j.LowConfidencePages,
		&j.ArtifactPath, &j.ResultPath, &j.ImportID, &j.ErrorCode, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func intsOrEmpty(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, source_ref, project_id, status, mode, attempt_count, max_attempts, priority,
		                   ocr_pages, text_pages, low_confidence_pages, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.SourceRef, job.ProjectID, job.Status, job.Mode, job.AttemptCount, job.MaxAttempts, job.Priority,
		intsOrEmpty(job.OCRPages), intsOrEmpty(job.TextPages), intsOrEmpty(job.LowConfidencePages),
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// conflictOrNotFound resolves a conditional update that touched no rows.
func (s *PostgresStore) conflictOrNotFound(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET
		   status = CASE WHEN status = 'queued' THEN 'running' ELSE 'retrying' END,
		   attempt_count = attempt_count + 1,
		   started_at = $2, last_heartbeat_at = $2, finished_at = NULL,
		   error_code = NULL, error_message = NULL, updated_at = $2
		 WHERE id = $1
		   AND (status = 'queued' OR (status = 'failed' AND attempt_count < max_attempts))
		 RETURNING `+jobColumns, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.conflictOrNotFound(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) TransitionJob(ctx context.Context, id uuid.UUID, attempt int, to models.JobStatus, now time.Time) error {
	from := models.TransitionSources(to)
	if len(from) == 0 || !to.IsActive() {
		return fmt.Errorf("transition job to %s: %w", to, ErrConflict)
	}
	sources := make([]string, len(from))
	for i, f := range from {
		sources[i] = string(f)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, last_heartbeat_at = $3, updated_at = $3
		 WHERE id = $1 AND status = ANY($4) AND attempt_count = $5`, id, to, now, sources, attempt)
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (s *PostgresStore) Heartbeat(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET last_heartbeat_at = $2, updated_at = $2
		 WHERE id = $1 AND status IN ('running', 'retrying', 'needs_ocr') AND attempt_count = $3`, id, now, attempt)
	if err != nil {
		return fmt.Errorf("heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, id uuid.UUID, attempt int, o models.JobOutcome, now time.Time) (*models.Job, error) {
	if !isFinal(o.Status) {
		return nil, fmt.Errorf("finish job with status %s: %w", o.Status, ErrConflict)
	}
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET
		   status = $2, finished_at = $3, last_heartbeat_at = $3, updated_at = $3,
		   page_count = $4, ocr_pages = $5, text_pages = $6, low_confidence_pages = $7,
		   artifact_path = $8, result_path = $9, import_id = $10, error_code = $11, error_message = $12
		 WHERE id = $1 AND status IN ('running', 'retrying', 'needs_ocr') AND attempt_count = $13
		 RETURNING `+jobColumns,
		id, o.Status, now, o.PageCount, intsOrEmpty(o.OCRPages), intsOrEmpty(o.TextPages), intsOrEmpty(o.LowConfidencePages),
		o.ArtifactPath, o.ResultPath, o.ImportID, o.ErrorCode, o.ErrorMessage, attempt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.conflictOrNotFound(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("finish job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) FailStaleJobs(ctx context.Context, before time.Time, code models.ErrorCode, message string, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = 'failed', finished_at = $2, updated_at = $2, error_code = $3, error_message = $4
		 WHERE status IN ('running', 'retrying', 'needs_ocr') AND last_heartbeat_at < $1
		 RETURNING id`, before, now, code, message)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan stale job ids: %w", err)
	}
	return ids, nil
}

// --- Imports ---

func (s *PostgresStore) CreateImport(ctx context.Context, batch *models.ImportBatch, items []models.ScheduleItem) error {
	rowErrors := batch.RowErrors
	if rowErrors == nil {
		rowErrors = []models.RowError{}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO import_batches (id, job_id, source_ref, source_format, status, needs_review,
			                             items_extracted, error_code, error_message, row_errors, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			batch.ID, batch.JobID, batch.SourceRef, batch.SourceFormat, batch.Status, batch.NeedsReview,
			batch.ItemsExtracted, batch.ErrorCode, batch.ErrorMessage, rowErrors, batch.CreatedAt)
		if err != nil {
			return fmt.Errorf("create import batch: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		rows := make([][]any, len(items))
		for i, it := range items {
			rows[i] = []any{it.ID, batch.ID, i, it.SectionSizeRaw, it.SectionSizeNormalized, it.FRRMinutes, it.FRRFormat,
				it.CoatingProduct, it.DFTRequiredMicrons, it.MemberMark, it.ElementType, it.NeedsReview, it.Confidence,
				it.Citation.Page, it.Citation.LineStart, it.Citation.LineEnd, it.RawText}
		}
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"schedule_items"},
			[]string{"id", "import_id", "position", "section_size_raw", "section_size_normalized", "frr_minutes", "frr_format",
				"coating_product", "dft_required_microns", "member_mark", "element_type", "needs_review", "confidence",
				"page", "line_start", "line_end", "raw_text"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("insert schedule items: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetImport(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	var b models.ImportBatch
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, source_ref, source_format, status, needs_review, items_extracted,
		        error_code, error_message, row_errors, created_at
		 FROM import_batches WHERE id = $1`, id,
	).Scan(&b.ID, &b.JobID, &b.SourceRef, &b.SourceFormat, &b.Status, &b.NeedsReview, &b.ItemsExtracted,
		&b.ErrorCode, &b.ErrorMessage, &b.RowErrors, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import batch: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) ListImportItems(ctx context.Context, importID uuid.UUID) ([]models.ScheduleItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, import_id, section_size_raw, section_size_normalized, frr_minutes, frr_format, coating_product,
		        dft_required_microns, member_mark, element_type, needs_review, confidence, page, line_start, line_end, raw_text
		 FROM schedule_items WHERE import_id = $1 ORDER BY position`, importID)
	if err != nil {
		return nil, fmt.Errorf("list schedule items: %w", err)
	}
	defer rows.Close()

	items := []models.ScheduleItem{}
	for rows.Next() {
		var it models.ScheduleItem
		if err := rows.Scan(&it.ID, &it.ImportID, &it.SectionSizeRaw, &it.SectionSizeNormalized, &it.FRRMinutes,
			&it.FRRFormat, &it.CoatingProduct, &it.DFTRequiredMicrons, &it.MemberMark, &it.ElementType,
			&it.NeedsReview, &it.Confidence, &it.Citation.Page, &it.Citation.LineStart, &it.Citation.LineEnd,
			&it.RawText); err != nil {
			return nil, fmt.Errorf("scan schedule item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
