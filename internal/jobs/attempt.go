package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/internal/blob"
	"github.com/kiranshivaraju/steelsched/internal/chunk"
	"github.com/kiranshivaraju/steelsched/internal/extract"
	"github.com/kiranshivaraju/steelsched/internal/pages"
	"github.com/kiranshivaraju/steelsched/internal/review"
	"github.com/kiranshivaraju/steelsched/internal/store"
	"github.com/kiranshivaraju/steelsched/internal/tabular"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// attempt accumulates what one run learns about its job.
type attempt struct {
	job    *models.Job
	logger *slog.Logger

	format      string
	pages       []models.PageRecord
	pageCount   *int
	lowConf     []int
	artifactRef *string
	resultRef   *string

	importID     *uuid.UUID
	importStatus *models.ImportStatus
	items        *int

	status      models.JobStatus
	needsReview bool
	code        *models.ErrorCode
	message     *string
}

func (a *attempt) fail(err *Error) {
	a.status = models.JobStatusFailed
	a.code = &err.Code
	a.message = &err.Message
	a.logger.Error("attempt failed", "error_code", err.Code, "error", err.Err)
}

// note records an informational code on an otherwise successful attempt.
func (a *attempt) note(code models.ErrorCode) {
	e := newError(code, nil)
	a.code = &e.Code
	a.message = &e.Message
}

func (a *attempt) recordPack(pack *models.ArtifactPack) {
	a.pages = pack.Pages
	n := pack.PageCount
	a.pageCount = &n
	a.lowConf = pack.LowConfidencePages
}

func (a *attempt) recordImport(batch *models.ImportBatch) {
	id := batch.ID
	status := batch.Status
	n := batch.ItemsExtracted
	a.importID = &id
	a.importStatus = &status
	a.items = &n
}

func (a *attempt) outcome() models.JobOutcome {
	out := models.JobOutcome{
		Status:             a.status,
		OCRPages:           models.PagesByMethod(a.pages, models.PageMethodOCR),
		TextPages:          models.PagesByMethod(a.pages, models.PageMethodText),
		LowConfidencePages: a.lowConf,
		ArtifactPath:       a.artifactRef,
		ResultPath:         a.resultRef,
		ImportID:           a.importID,
		ErrorCode:          a.code,
		ErrorMessage:       a.message,
	}
	if out.LowConfidencePages == nil {
		out.LowConfidencePages = []int{}
	}
	if a.pageCount != nil {
		out.PageCount = *a.pageCount
	}
	return out
}

func (a *attempt) result() *RunResult {
	return &RunResult{
		JobID:          a.job.ID,
		Status:         a.status,
		Attempt:        a.job.AttemptCount,
		ItemsExtracted: a.items,
		PageCount:      a.pageCount,
		NeedsReview:    a.needsReview,
		ImportID:       a.importID,
		ImportStatus:   a.importStatus,
		ErrorCode:      a.code,
		ErrorMessage:   a.message,
	}
}

// execute runs the pipeline and turns every failure, panics included, into
// a failed attempt.
func (s *Service) execute(ctx context.Context, a *attempt) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic in attempt", "error", r, "stack", string(debug.Stack()))
			a.fail(newError(models.ErrCodeInternal, fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := s.pipeline(ctx, a); err != nil {
		a.fail(PublicError(err))
	}
}

func (s *Service) pipeline(ctx context.Context, a *attempt) error {
	bucket, key, err := blob.ParseRef(a.job.SourceRef)
	if err != nil {
		return newError(models.ErrCodeDownloadFailed, err)
	}
	obj, err := s.blobs.Get(ctx, bucket, key)
	if err != nil {
		return newError(models.ErrCodeDownloadFailed, fmt.Errorf("get %s: %w", a.job.SourceRef, err))
	}
	if err := s.step(ctx, a, "download"); err != nil {
		return err
	}

	format, route, err := Dispatch(key, obj, s.parser)
	if err != nil {
		return err
	}
	a.format = format
	a.logger.Info("source dispatched", "format", format, "route", route, "bytes", obj.Size)

	if route == RouteTabular {
		return s.runTabular(ctx, a, obj.Data)
	}
	return s.runPages(ctx, a, obj.Data)
}

// step logs a pipeline step and refreshes the heartbeat. A conflict means
// the attempt no longer owns the job (reaped, or superseded by a retry) and
// must stop.
func (s *Service) step(ctx context.Context, a *attempt, name string) error {
	a.logger.Info("pipeline step", "step", name)
	if err := s.store.Heartbeat(ctx, a.job.ID, a.job.AttemptCount, s.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return newError(models.ErrCodeStaleHeartbeat, err)
		}
		a.logger.Warn("heartbeat failed", "step", name, "error", err)
	}
	return nil
}

func (s *Service) runTabular(ctx context.Context, a *attempt, data []byte) error {
	var (
		res      *tabular.Result
		parseErr error
	)
	if a.format == FormatXLSX {
		res, parseErr = s.parser.ReadWorkbook(data)
	} else {
		res, parseErr = s.parser.ReadDelimited(data)
	}
	if parseErr != nil {
		a.logger.Warn("tabular parse failed", "error", parseErr)
		res = &tabular.Result{}
	}
	if err := s.step(ctx, a, "parse"); err != nil {
		return err
	}

	pack := s.newPack(a, models.SplitNative, sheetPages(res), nil)
	if parseErr != nil {
		pack.Errors = append(pack.Errors, models.PipelineError{
			Code:    string(models.ErrCodeExtractionFailed),
			Message: parseErr.Error(),
		})
	}
	a.recordPack(pack)
	if err := s.putJSON(ctx, a, blob.ArtifactPath(a.job.ID), pack, &a.artifactRef); err != nil {
		return err
	}

	items := res.Items
	if items == nil {
		items = []models.ScheduleItem{}
	}
	decision := review.DecideImport(items, parseErr != nil)
	batch := s.newBatch(a, decision, res.RowErrors, items)
	if len(items) == 0 {
		code := models.ErrCodeNoStructuralRows
		if parseErr != nil {
			code = models.ErrCodeExtractionFailed
		}
		e := newError(code, nil)
		batch.ErrorCode = &e.Code
		batch.ErrorMessage = &e.Message
	}
	if err := s.store.CreateImport(ctx, batch, items); err != nil {
		return newError(models.ErrCodeStoreFailed, fmt.Errorf("create import: %w", err))
	}
	a.recordImport(batch)
	if err := s.step(ctx, a, "import"); err != nil {
		return err
	}

	summary := importSummary{
		ImportID:       batch.ID,
		Status:         batch.Status,
		NeedsReview:    batch.NeedsReview,
		ItemsExtracted: batch.ItemsExtracted,
		ErrorCode:      batch.ErrorCode,
		RowErrors:      batch.RowErrors,
	}
	if err := s.putJSON(ctx, a, blob.ResultPath(a.job.ID), summary, &a.resultRef); err != nil {
		return err
	}

	if parseErr != nil {
		return newError(models.ErrCodeExtractionFailed, parseErr)
	}
	a.status = review.JobStatus(decision.Status)
	a.needsReview = decision.NeedsReview
	if len(items) == 0 {
		a.note(models.ErrCodeNoStructuralRows)
	}
	return nil
}

// importSummary is the result pack of a tabular job.
type importSummary struct {
	ImportID       uuid.UUID           `json:"import_id"`
	Status         models.ImportStatus `json:"status"`
	NeedsReview    bool                `json:"needs_review"`
	ItemsExtracted int                 `json:"items_extracted"`
	ErrorCode      *models.ErrorCode   `json:"error_code,omitempty"`
	RowErrors      []models.RowError   `json:"row_errors"`
}

func (s *Service) runPages(ctx context.Context, a *attempt, data []byte) error {
	res := s.pages.Extract(ctx, pages.Request{
		Data:      data,
		Format:    a.format,
		Mode:      a.job.Mode,
		BeforeOCR: func(targets []int) { s.enterOCR(ctx, a, targets) },
	})
	if err := s.step(ctx, a, "pages"); err != nil {
		return err
	}

	pack := s.newPack(a, res.SplitStrategy, res.Pages, res.Errors)
	pack.PageCount = res.PageCount
	a.recordPack(pack)
	if err := s.putJSON(ctx, a, blob.ArtifactPath(a.job.ID), pack, &a.artifactRef); err != nil {
		return err
	}

	chunks := chunk.Split(pack.Pages, s.chunkBudget)
	result := s.engine.Extract(ctx, extract.Request{
		JobID:              a.job.ID,
		Attempt:            a.job.AttemptCount,
		PageCount:          pack.PageCount,
		Chunks:             chunks,
		LowConfidencePages: pack.LowConfidencePages,
	})
	if err := s.step(ctx, a, "extract"); err != nil {
		return err
	}

	decision := review.DecidePages(pack)
	a.needsReview = decision.NeedsReview

	if items := tabular.ScanPages(pack.Pages); len(items) > 0 {
		imp := review.DecideImport(items, false)
		batch := s.newBatch(a, imp, nil, items)
		if err := s.store.CreateImport(ctx, batch, items); err != nil {
			return newError(models.ErrCodeStoreFailed, fmt.Errorf("create import: %w", err))
		}
		a.recordImport(batch)
		a.needsReview = a.needsReview || imp.NeedsReview
	}

	if err := s.putJSON(ctx, a, blob.ResultPath(a.job.ID), result, &a.resultRef); err != nil {
		return err
	}

	if decision.Status == models.ImportStatusFailed {
		return newError(models.ErrCodeExtractionFailed, errors.New("no pages extracted"))
	}
	a.status = review.JobStatus(decision.Status)
	return nil
}

// enterOCR moves the job to needs_ocr for the duration of the OCR pass.
func (s *Service) enterOCR(ctx context.Context, a *attempt, targets []int) {
	a.logger.Info("pipeline step", "step", "ocr", "pages", targets)
	if err := s.store.TransitionJob(ctx, a.job.ID, a.job.AttemptCount, models.JobStatusNeedsOCR, s.now()); err != nil {
		a.logger.Warn("transition to needs_ocr failed", "error", err)
		return
	}
	s.cacheStatus(ctx, a.job.ID, models.JobStatusNeedsOCR)
}

func (s *Service) newPack(a *attempt, strategy models.SplitStrategy, recs []models.PageRecord, errs []models.PipelineError) *models.ArtifactPack {
	if recs == nil {
		recs = []models.PageRecord{}
	}
	if errs == nil {
		errs = []models.PipelineError{}
	}
	return &models.ArtifactPack{
		JobID:              a.job.ID,
		Attempt:            a.job.AttemptCount,
		SourceRef:          a.job.SourceRef,
		Format:             a.format,
		PageCount:          len(recs),
		SplitStrategy:      strategy,
		Pages:              recs,
		LowConfidencePages: models.ComputeLowConfidencePages(recs),
		Errors:             errs,
		CreatedAt:          s.now(),
	}
}

func (s *Service) newBatch(a *attempt, d review.Decision, rowErrs []models.RowError, items []models.ScheduleItem) *models.ImportBatch {
	if rowErrs == nil {
		rowErrs = []models.RowError{}
	}
	jobID := a.job.ID
	batch := &models.ImportBatch{
		ID:             uuid.New(),
		JobID:          &jobID,
		SourceRef:      a.job.SourceRef,
		SourceFormat:   a.format,
		Status:         d.Status,
		NeedsReview:    d.NeedsReview,
		ItemsExtracted: len(items),
		RowErrors:      rowErrs,
		CreatedAt:      s.now(),
	}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].ImportID = batch.ID
	}
	return batch
}

// putJSON upserts v as JSON in the artifact bucket and stores its ref in dst.
// The paths are shared by every attempt of a job, so ownership is checked
// right before the write.
func (s *Service) putJSON(ctx context.Context, a *attempt, key string, v any, dst **string) error {
	if err := s.step(ctx, a, "store "+path.Base(key)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return newError(models.ErrCodeUploadFailed, fmt.Errorf("marshal %s: %w", key, err))
	}
	if err := s.blobs.Put(ctx, s.bucket, key, data, "application/json", true); err != nil {
		return newError(models.ErrCodeUploadFailed, fmt.Errorf("put %s/%s: %w", s.bucket, key, err))
	}
	ref := s.bucket + "/" + key
	*dst = &ref
	a.logger.Debug("pack stored", "ref", ref, "bytes", len(data))
	return nil
}

// sheetPages turns tabular sheets into page records whose lines are the raw
// rows. Row errors are attached to the page they occurred on.
func sheetPages(res *tabular.Result) []models.PageRecord {
	recs := make([]models.PageRecord, 0, len(res.Sheets))
	for _, sh := range res.Sheets {
		texts := make([]string, len(sh.Lines))
		for i, l := range sh.Lines {
			texts[i] = l.Text
		}
		text := strings.Join(texts, "\n")
		rec := models.PageRecord{
			Page:       sh.Page,
			Method:     models.PageMethodText,
			Confidence: pages.ConfidenceFull,
			Text:       text,
			Lines:      sh.Lines,
			WordCount:  pages.CountWords(text),
			CharCount:  pages.CountNonSpace(text),
			Errors:     []string{},
		}
		if rec.Lines == nil {
			rec.Lines = []models.PageLine{}
		}
		if rec.CharCount == 0 {
			rec.Method = models.PageMethodNone
			rec.Confidence = pages.ConfidenceNone
		}
		for _, re := range res.RowErrors {
			if re.Page == sh.Page {
				rec.Errors = append(rec.Errors, fmt.Sprintf("line %d: %s", re.Line, re.Message))
			}
		}
		recs = append(recs, rec)
	}
	return recs
}
