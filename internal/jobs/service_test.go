package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/steelsched/internal/ai/mock"
	"github.com/kiranshivaraju/steelsched/internal/blob"
	"github.com/kiranshivaraju/steelsched/internal/cache"
	"github.com/kiranshivaraju/steelsched/internal/events"
	"github.com/kiranshivaraju/steelsched/internal/extract"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
	"github.com/kiranshivaraju/steelsched/internal/pages"
	"github.com/kiranshivaraju/steelsched/internal/store"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	svc   *jobs.Service
	store *store.MemoryStore
	blobs blob.Store
	cache *cache.MemoryCache
}

type harnessOption func(*jobs.Deps)

func withPages(e *pages.Extractor) harnessOption { return func(d *jobs.Deps) { d.Pages = e } }
func withEngine(e *extract.Engine) harnessOption { return func(d *jobs.Deps) { d.Engine = e } }
func withBlobs(wrap func(blob.Store) blob.Store) harnessOption {
	return func(d *jobs.Deps) { d.Blobs = wrap(d.Blobs) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	fs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{store: store.NewMemoryStore(), blobs: fs, cache: cache.NewMemoryCache()}
	deps := jobs.Deps{
		Store:  h.store,
		Blobs:  fs,
		Cache:  h.cache,
		Events: events.NewChannelPublisher(h.cache),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = jobs.NewService(deps, jobs.Config{Logger: quiet})
	return h
}

func (h *harness) put(t *testing.T, path, contentType, data string) string {
	t.Helper()
	require.NoError(t, h.blobs.Put(context.Background(), "uploads", path, []byte(data), contentType, true))
	return "uploads/" + path
}

func (h *harness) submit(t *testing.T, ref string, mode models.JobMode, maxAttempts int) *models.Job {
	t.Helper()
	job, err := h.svc.Submit(context.Background(), jobs.SubmitParams{SourceRef: ref, Mode: mode, MaxAttempts: maxAttempts})
	require.NoError(t, err)
	return job
}

func sentence(words int) string {
	w := make([]string, words)
	for i := range w {
		w[i] = fmt.Sprintf("word%02d", i)
	}
	return strings.Join(w, " ")
}

// stubLayer serves fixed page texts for PDF sources.
type stubLayer struct{ pages []string }

func (s stubLayer) ExtractText(context.Context, []byte) (*pages.TextDocument, error) {
	return &pages.TextDocument{
		Text:       strings.Join(s.pages, pages.PageBreak),
		PageCount:  len(s.pages),
		PageErrors: map[int]string{},
	}, nil
}

// --- Submit ---

func TestSubmit_Defaults(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "uploads/schedule.csv", "", 0)

	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, models.JobModeAuto, job.Mode)
	assert.Equal(t, models.DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, 0, job.AttemptCount)

	status, found, err := h.cache.GetJobStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "queued", status)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params jobs.SubmitParams
	}{
		{"missing path", jobs.SubmitParams{SourceRef: "uploads"}},
		{"empty ref", jobs.SubmitParams{SourceRef: "  "}},
		{"traversal", jobs.SubmitParams{SourceRef: "uploads/../etc/passwd"}},
		{"unknown mode", jobs.SubmitParams{SourceRef: "uploads/a.pdf", Mode: "magic"}},
		{"negative attempts", jobs.SubmitParams{SourceRef: "uploads/a.pdf", MaxAttempts: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Submit(context.Background(), tt.params)
			require.Error(t, err)
			assert.True(t, jobs.IsCode(err, models.ErrCodeInvalidRequest))
		})
	}
}

// --- Tabular path ---

func TestRun_ScenarioA_CleanRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := h.put(t, "a.csv", "text/csv", "section,frr,dft,coating\n610UB125,90,425,SC601\n")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.JobStatusCompleted, res.Status)
	assert.Equal(t, 1, res.Attempt)
	assert.False(t, res.NeedsReview)
	require.NotNil(t, res.ItemsExtracted)
	assert.Equal(t, 1, *res.ItemsExtracted)
	require.NotNil(t, res.ImportStatus)
	assert.Equal(t, models.ImportStatusCompleted, *res.ImportStatus)

	view, err := h.svc.Import(ctx, *res.ImportID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	item := view.Items[0]
	assert.Equal(t, "610UB125", item.SectionSizeNormalized)
	assert.Equal(t, 90, *item.FRRMinutes)
	assert.Equal(t, "90/-/-", *item.FRRFormat)
	assert.Equal(t, 425, *item.DFTRequiredMicrons)
	assert.Equal(t, 1.0, item.Confidence)
	assert.False(t, item.NeedsReview)
	assert.Equal(t, models.Citation{Page: 1, LineStart: 2, LineEnd: 2}, item.Citation)

	stored, err := h.svc.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	require.NotNil(t, stored.ArtifactPath)
	assert.Equal(t, "parsing/artifacts/"+job.ID.String()+"/artifact.json", *stored.ArtifactPath)
	assert.Equal(t, []int{1}, stored.TextPages)
	assert.NotNil(t, stored.FinishedAt)
}

func TestRun_ScenarioB_NeedsReview(t *testing.T) {
	h := newHarness(t)
	ref := h.put(t, "b.csv", "text/csv", "section,frr,dft,coating\n310UC97,60,,\n")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPartialCompleted, res.Status)
	assert.True(t, res.NeedsReview)
	assert.Equal(t, models.ImportStatusNeedsReview, *res.ImportStatus)

	view, err := h.svc.Import(context.Background(), *res.ImportID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 0.5, view.Items[0].Confidence)
	assert.True(t, view.Items[0].NeedsReview)
}

func TestRun_TabularNoRows(t *testing.T) {
	h := newHarness(t)
	ref := h.put(t, "empty.csv", "text/csv", "section,frr\n")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPartialCompleted, res.Status)
	assert.Equal(t, models.ImportStatusPartialCompleted, *res.ImportStatus)
	assert.Equal(t, 0, *res.ItemsExtracted)
	require.NotNil(t, res.ErrorCode)
	assert.Equal(t, models.ErrCodeNoStructuralRows, *res.ErrorCode)
}

func TestRun_TabularUnreadable(t *testing.T) {
	h := newHarness(t)
	ref := h.put(t, "broken.xlsx", "", "not a zip archive")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.JobStatusFailed, res.Status)
	assert.Equal(t, models.ErrCodeExtractionFailed, *res.ErrorCode)

	view, err := h.svc.Import(context.Background(), *res.ImportID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusFailed, view.Import.Status)
	assert.Empty(t, view.Items)
}

func TestRun_DelimitedTextGoesToTabular(t *testing.T) {
	h := newHarness(t)
	ref := h.put(t, "schedule.txt", "text/plain", "Section|FRR|DFT|Product\n200UB25|120|900|SC902\n")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, res.Status)
	assert.Equal(t, 1, *res.ItemsExtracted)
}

func TestRun_PublishesCompletionEvent(t *testing.T) {
	h := newHarness(t)
	ref := h.put(t, "a.csv", "text/csv", "section,frr,dft,coating\n610UB125,90,425,SC601\n")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)

	msgs := h.cache.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, events.CompletedChannel, msgs[0].Channel)

	var ev events.JobCompleted
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &ev))
	assert.Equal(t, events.TypeJobCompleted, ev.Type)
	assert.Equal(t, job.ID, ev.JobID)
	assert.Equal(t, models.JobStatusCompleted, ev.Status)
	assert.Equal(t, res.ImportID, ev.ImportID)
	assert.False(t, ev.NeedsReview)
}

// --- Page path ---

func TestRun_ScenarioC_LowConfidencePage(t *testing.T) {
	layer := stubLayer{pages: []string{
		"Fire protection schedule\n" + sentence(40),
		"only five words here today",
		"General notes\n" + sentence(35),
	}}
	h := newHarness(t, withPages(pages.NewExtractor(pages.WithPDFTextLayer(layer), pages.WithLogger(quiet))))
	ctx := context.Background()
	ref := h.put(t, "quote.pdf", "application/pdf", "%PDF-1.4")
	job := h.submit(t, ref, models.JobModeAuto, 0)

	res, err := h.svc.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPartialCompleted, res.Status)
	assert.True(t, res.NeedsReview)
	assert.Equal(t, 3, *res.PageCount)
	assert.Nil(t, res.ImportID)

	stored, err := h.svc.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, stored.LowConfidencePages)
	assert.Equal(t, []int{1, 3}, stored.TextPages)
	assert.Equal(t, 3, stored.PageCount)

	raw, err := h.svc.Artifact(ctx, job.ID)
	require.NoError(t, err)
	var pack models.ArtifactPack
	require.NoError(t, json.Unmarshal(raw, &pack))
	assert.Equal(t, []int{2}, pack.LowConfidencePages)
	assert.Equal(t, models.SplitMarkers, pack.SplitStrategy)
	assert.Contains(t, pack.Pages[1].Errors, pages.PageErrOCRUnavailable)

	raw, err = h.svc.Result(ctx, job.ID)
	require.NoError(t, err)
	var result models.ExtractionResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, models.ErrCodeBackendUnavailable, result.Meta.FallbackReason)
}

func TestRun_ScenarioD_BackendTimeout(t *testing.T) {
	layer := stubLayer{pages: []string{sentence(40), sentence(45)}}
	engine := extract.NewEngine(mock.NewTimeoutProvider(), quiet, extract.WithTimeout(20*time.Millisecond))
	h := newHarness(t,
		withPages(pages.NewExtractor(pages.WithPDFTextLayer(layer), pages.WithLogger(quiet))),
		withEngine(engine),
	)
	ctx := context.Background()
	ref := h.put(t, "quote.pdf", "application/pdf", "%PDF-1.4")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, res.Status)

	raw, err := h.svc.Result(ctx, job.ID)
	require.NoError(t, err)
	var result models.ExtractionResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Nil(t, result.DocumentType)
	assert.Empty(t, result.LineItems)
	assert.True(t, result.HasWarning(models.WarnExtractionFailed))
	assert.Equal(t, 0.5, result.Confidence)
	assert.Equal(t, models.ErrCodeTimeout, result.Meta.FallbackReason)
}

func TestRun_PageScheduleRowsBecomeImport(t *testing.T) {
	layer := stubLayer{pages: []string{
		"Loading schedule level 2 " + sentence(30) + "\n" +
			"B1 610UB125 beam 90/90/90 425 SC601\n" +
			"C4 310UC97 column 120 1050 SC902",
	}}
	h := newHarness(t, withPages(pages.NewExtractor(pages.WithPDFTextLayer(layer), pages.WithLogger(quiet))))
	ref := h.put(t, "schedule.pdf", "application/pdf", "%PDF-1.4")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, res.ImportID)
	assert.Equal(t, 2, *res.ItemsExtracted)

	view, err := h.svc.Import(context.Background(), *res.ImportID)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "610UB125", view.Items[0].SectionSizeNormalized)
	assert.Equal(t, 2, view.Items[0].Citation.LineStart)
	assert.Equal(t, "310UC97", view.Items[1].SectionSizeNormalized)
}

func TestRun_UndecodablePDFFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := h.put(t, "broken.pdf", "application/pdf", "%PDF-1.4 garbage not a pdf")
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.JobStatusFailed, res.Status)
	require.NotNil(t, res.ErrorCode)
	assert.Equal(t, models.ErrCodeExtractionFailed, *res.ErrorCode)
	assert.Empty(t, h.cache.Published())

	raw, err := h.svc.Artifact(ctx, job.ID)
	require.NoError(t, err)
	var pack models.ArtifactPack
	require.NoError(t, json.Unmarshal(raw, &pack))
	require.Len(t, pack.Pages, 1)
	assert.Equal(t, models.PageMethodNone, pack.Pages[0].Method)
	assert.Equal(t, string(models.ErrCodeExtractionFailed), pack.Errors[0].Code)
}

type statusRecordingOCR struct {
	store  store.Store
	jobID  uuid.UUID
	seen   []models.JobStatus
	ocrTxt string
}

func (o *statusRecordingOCR) Available() bool { return true }

func (o *statusRecordingOCR) OCRPage(ctx context.Context, _ string, _ int) (string, error) {
	job, err := o.store.GetJob(ctx, o.jobID)
	if err != nil {
		return "", err
	}
	o.seen = append(o.seen, job.Status)
	return o.ocrTxt, nil
}

func TestRun_OCRPassMovesJobToNeedsOCR(t *testing.T) {
	rec := &statusRecordingOCR{ocrTxt: sentence(40)}
	layer := stubLayer{pages: []string{sentence(40), "scan"}}
	h := newHarness(t, withPages(pages.NewExtractor(
		pages.WithPDFTextLayer(layer),
		pages.WithOCR(rec),
		pages.WithLogger(quiet),
	)))
	rec.store = h.store
	ref := h.put(t, "scan.pdf", "application/pdf", "%PDF-1.4")
	job := h.submit(t, ref, models.JobModeAuto, 0)
	rec.jobID = job.ID

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.JobStatus{models.JobStatusNeedsOCR}, rec.seen)
	assert.Equal(t, models.JobStatusCompleted, res.Status)

	stored, err := h.svc.Job(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, stored.OCRPages)
	assert.Equal(t, []int{1}, stored.TextPages)
}

// --- Rejections and retries ---

func TestRun_ScenarioE_AlreadyRunningHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := h.put(t, "a.csv", "text/csv", "section,frr,dft,coating\n610UB125,90,425,SC601\n")
	job := h.submit(t, ref, "", 0)

	claimed, err := h.store.ClaimJob(ctx, job.ID, time.Now().UTC())
	require.NoError(t, err)

	res, err := h.svc.Run(ctx, job.ID)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, jobs.IsCode(err, models.ErrCodeAlreadyRunning))

	after, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, claimed, after)

	paths, err := h.blobs.List(ctx, "parsing", "")
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Empty(t, h.cache.Published())

	status, _, err := h.cache.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "queued", status)
}

func TestRun_MaxAttemptsExceeded(t *testing.T) {
	h := newHarness(t)
	ref := h.put(t, "notes.docx", "application/octet-stream", "PK")
	job := h.submit(t, ref, "", 1)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.JobStatusFailed, res.Status)
	assert.Equal(t, models.ErrCodeUnsupportedFormat, *res.ErrorCode)
	assert.Equal(t, "Source format is not supported", *res.ErrorMessage)

	_, err = h.svc.Run(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, jobs.IsCode(err, models.ErrCodeMaxAttempts))
}

func TestRun_RetryAfterFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t, "uploads/late.csv", "", 2)

	res, err := h.svc.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ErrCodeDownloadFailed, *res.ErrorCode)

	h.put(t, "late.csv", "text/csv", "section,frr,dft,coating\n610UB125,90,425,SC601\n")
	res, err = h.svc.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempt)

	stored, err := h.svc.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AttemptCount)
	assert.Nil(t, stored.ErrorCode)
}

func TestRun_FinishedJobIsRejected(t *testing.T) {
	h := newHarness(t)
	ref := h.put(t, "a.csv", "text/csv", "section,frr,dft,coating\n610UB125,90,425,SC601\n")
	job := h.submit(t, ref, "", 0)

	_, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)

	_, err = h.svc.Run(context.Background(), job.ID)
	assert.True(t, jobs.IsCode(err, models.ErrCodeJobFinished))
	assert.Len(t, h.cache.Published(), 1)
}

func TestRun_UnknownJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Run(context.Background(), uuid.New())
	assert.True(t, jobs.IsCode(err, models.ErrCodeNotFound))
}

// --- Failure handling ---

type panickingBlobs struct{ blob.Store }

func (panickingBlobs) Get(context.Context, string, string) (*blob.Object, error) {
	panic("disk on fire")
}

func TestRun_RecoversPanic(t *testing.T) {
	h := newHarness(t, withBlobs(func(b blob.Store) blob.Store { return panickingBlobs{b} }))
	job := h.submit(t, "uploads/a.csv", "", 0)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, res.Status)
	assert.Equal(t, models.ErrCodeInternal, *res.ErrorCode)

	stored, err := h.svc.Job(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, "An unexpected error occurred", *stored.ErrorMessage)
}

type readOnlyBlobs struct{ blob.Store }

func (readOnlyBlobs) Put(context.Context, string, string, []byte, string, bool) error {
	return errors.New("bucket is read-only")
}

func TestRun_UploadFailure(t *testing.T) {
	h := newHarness(t)
	ref := h.put(t, "a.csv", "text/csv", "section,frr,dft,coating\n610UB125,90,425,SC601\n")
	h.svc = jobs.NewService(jobs.Deps{
		Store:  h.store,
		Blobs:  readOnlyBlobs{h.blobs},
		Cache:  h.cache,
		Events: events.NewChannelPublisher(h.cache),
	}, jobs.Config{Logger: quiet})
	job := h.submit(t, ref, "", 0)

	res, err := h.svc.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, res.Status)
	assert.Equal(t, models.ErrCodeUploadFailed, *res.ErrorCode)
	assert.Empty(t, h.cache.Published())
}

// --- Stale jobs ---

func TestReapStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale := h.submit(t, "uploads/a.csv", "", 0)
	fresh := h.submit(t, "uploads/b.csv", "", 0)

	_, err := h.store.ClaimJob(ctx, stale.ID, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	_, err = h.store.ClaimJob(ctx, fresh.ID, time.Now().UTC())
	require.NoError(t, err)

	ids, err := h.svc.ReapStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{stale.ID}, ids)

	job, err := h.svc.Job(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.ErrCodeStaleHeartbeat, *job.ErrorCode)

	status, err := h.svc.Status(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, status)

	status, err = h.svc.Status(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, status, "status comes from the cache until the next write")
}

// gatedLayer blocks each text-layer call until its gate is closed.
type gatedLayer struct {
	pages   []string
	entered chan int
	gates   []chan struct{}

	mu    sync.Mutex
	calls int
}

func newGatedLayer(n int, texts ...string) *gatedLayer {
	g := &gatedLayer{pages: texts, entered: make(chan int, n)}
	for i := 0; i < n; i++ {
		g.gates = append(g.gates, make(chan struct{}))
	}
	return g
}

func (g *gatedLayer) ExtractText(ctx context.Context, data []byte) (*pages.TextDocument, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.mu.Unlock()

	g.entered <- n
	<-g.gates[n]
	return stubLayer{pages: g.pages}.ExtractText(ctx, data)
}

type runOutcome struct {
	res *jobs.RunResult
	err error
}

func TestRun_ReapedAttemptCannotOverwriteRetry(t *testing.T) {
	layer := newGatedLayer(2, sentence(40))
	h := newHarness(t, withPages(pages.NewExtractor(pages.WithPDFTextLayer(layer), pages.WithLogger(quiet))))
	ctx := context.Background()
	ref := h.put(t, "slow.pdf", "application/pdf", "%PDF-1.4")
	job := h.submit(t, ref, "", 3)

	run := func() chan runOutcome {
		out := make(chan runOutcome, 1)
		go func() {
			res, err := h.svc.Run(ctx, job.ID)
			out <- runOutcome{res: res, err: err}
		}()
		return out
	}

	first := run()
	<-layer.entered
	ids, err := h.svc.ReapStale(ctx, -time.Second)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{job.ID}, ids)

	second := run()
	<-layer.entered

	// The reaped attempt resumes while the retry still owns the job.
	close(layer.gates[0])
	r1 := <-first
	require.NoError(t, r1.err)
	assert.False(t, r1.res.Success)
	assert.Equal(t, 1, r1.res.Attempt)
	require.NotNil(t, r1.res.ErrorCode)
	assert.Equal(t, models.ErrCodeStaleHeartbeat, *r1.res.ErrorCode)

	mid, err := h.svc.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRetrying, mid.Status)
	assert.Equal(t, 2, mid.AttemptCount)
	paths, err := h.blobs.List(ctx, "parsing", "")
	require.NoError(t, err)
	assert.Empty(t, paths, "the reaped attempt stores nothing")

	close(layer.gates[1])
	r2 := <-second
	require.NoError(t, r2.err)
	assert.True(t, r2.res.Success)
	assert.Equal(t, 2, r2.res.Attempt)
	assert.Equal(t, models.JobStatusCompleted, r2.res.Status)

	stored, err := h.svc.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.AttemptCount)

	raw, err := h.svc.Artifact(ctx, job.ID)
	require.NoError(t, err)
	var pack models.ArtifactPack
	require.NoError(t, json.Unmarshal(raw, &pack))
	assert.Equal(t, 2, pack.Attempt)
	assert.Len(t, h.cache.Published(), 1)
}

func TestRunReaper_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.RunReaper(ctx, 5*time.Millisecond, time.Minute)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

// --- Reads ---

func TestArtifact_NotYetWritten(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "uploads/a.csv", "", 0)

	_, err := h.svc.Artifact(context.Background(), job.ID)
	assert.True(t, jobs.IsCode(err, models.ErrCodeNotFound))
}

// --- Ingest ---

func TestIngest_StoresAndRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Ingest(ctx, jobs.IngestParams{
		Filename:    `C:\schedules\level2.csv`,
		Data:        []byte("section,frr,dft,coating\n610UB125,90,425,SC601\n"),
		ContentType: "text/csv",
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, res.Status)

	job, err := h.svc.Job(ctx, res.JobID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.SourceRef, "parsing/uploads/"))
	assert.True(t, strings.HasSuffix(job.SourceRef, "/level2.csv"))
}

func TestIngest_Validation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Ingest(context.Background(), jobs.IngestParams{Filename: "", Data: []byte("x")})
	assert.True(t, jobs.IsCode(err, models.ErrCodeInvalidRequest))

	_, err = h.svc.Ingest(context.Background(), jobs.IngestParams{Filename: "a.csv"})
	assert.True(t, jobs.IsCode(err, models.ErrCodeInvalidRequest))
}
