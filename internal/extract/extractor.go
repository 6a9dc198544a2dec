// Package extract turns chunked page text into a cited ExtractionResult.
//
// Backend availability is a capability chosen at construction: a
// LiveExtractor calls the configured backend, a FallbackExtractor returns the
// empty fallback shape. The Engine runs the live path and degrades to the
// fallback shape on any failure, recording why.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/steelsched/internal/chunk"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Version is stamped into every result's meta.extractor_version.
const Version = "steelsched-extract/1"

const (
	DefaultTimeout      = 60 * time.Second
	DefaultPromptBudget = 12000
	fallbackConfidence  = 0.5
	maxOutputTokens     = 4096
)

// Request is the input to one structured extraction.
type Request struct {
	JobID              uuid.UUID
	Attempt            int
	PageCount          int
	Chunks             []chunk.Chunk
	LowConfidencePages []int
}

// StructuredExtractor produces a result for a request.
type StructuredExtractor interface {
	Name() string
	Extract(ctx context.Context, req Request) (*models.ExtractionResult, error)
}

// FallbackExtractor never calls a backend. Its result has every scalar null,
// no items, and a single EXTRACTION_FAILED warning.
type FallbackExtractor struct{}

func (FallbackExtractor) Name() string { return "fallback" }

func (FallbackExtractor) Extract(_ context.Context, req Request) (*models.ExtractionResult, error) {
	return fallbackResult(req), nil
}

func fallbackResult(req Request) *models.ExtractionResult {
	return &models.ExtractionResult{
		LineItems:  []models.LineItem{},
		Terms:      []models.CitedString{},
		Exclusions: []models.CitedString{},
		Confidence: fallbackConfidence,
		Warnings: []models.ResultWarning{{
			Code:    models.WarnExtractionFailed,
			Pages:   []int{},
			Message: "structured extraction unavailable; no values were extracted",
		}},
		Meta: models.ResultMeta{
			JobID:            req.JobID,
			Attempt:          req.Attempt,
			PageCount:        req.PageCount,
			ExtractorVersion: Version,
			Backend:          "fallback",
			ChunksTotal:      len(req.Chunks),
		},
	}
}

// LiveOption configures a LiveExtractor.
type LiveOption func(*LiveExtractor)

func WithTimeout(d time.Duration) LiveOption {
	return func(l *LiveExtractor) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithPromptBudget(n int) LiveOption {
	return func(l *LiveExtractor) {
		if n > 0 {
			l.promptBudget = n
		}
	}
}

// WithRateLimit bounds backend calls per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64) LiveOption {
	return func(l *LiveExtractor) {
		if rps > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			l.limiter = nil
		}
	}
}

func WithLogger(logger *slog.Logger) LiveOption {
	return func(l *LiveExtractor) { l.logger = logger }
}

// LiveExtractor sends the leading chunks to a backend and keeps only cited values.
type LiveExtractor struct {
	backend      models.AIBackend
	limiter      *rate.Limiter
	timeout      time.Duration
	promptBudget int
	logger       *slog.Logger
}

func NewLiveExtractor(backend models.AIBackend, opts ...LiveOption) *LiveExtractor {
	l := &LiveExtractor{
		backend:      backend,
		timeout:      DefaultTimeout,
		promptBudget: DefaultPromptBudget,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LiveExtractor) Name() string { return l.backend.Name() }

// backendOutput mirrors the schema the backend is asked to fill.
type backendOutput struct {
	DocumentType *models.CitedString  `json:"document_type"`
	Title        *models.CitedString  `json:"title"`
	Supplier     *models.CitedString  `json:"supplier"`
	Client       *models.CitedString  `json:"client"`
	ProjectName  *models.CitedString  `json:"project_name"`
	DocumentDate *models.CitedString  `json:"document_date"`
	ValidUntil   *models.CitedString  `json:"valid_until"`
	Currency     *models.CitedString  `json:"currency"`
	Totals       *models.Totals       `json:"totals"`
	LineItems    []models.LineItem    `json:"line_items"`
	Terms        []models.CitedString `json:"terms"`
	Exclusions   []models.CitedString `json:"exclusions"`
}

func (l *LiveExtractor) Extract(ctx context.Context, req Request) (*models.ExtractionResult, error) {
	sent, omitted := selectChunks(req.Chunks, l.promptBudget)

	res := &models.ExtractionResult{
		LineItems:  []models.LineItem{},
		Terms:      []models.CitedString{},
		Exclusions: []models.CitedString{},
		Warnings:   []models.ResultWarning{},
		Meta: models.ResultMeta{
			JobID:            req.JobID,
			Attempt:          req.Attempt,
			PageCount:        req.PageCount,
			ExtractorVersion: Version,
			Backend:          l.backend.Name(),
			Model:            l.backend.Model(),
			ChunksSent:       len(sent),
			ChunksTotal:      len(req.Chunks),
		},
	}
	if len(omitted) > 0 {
		var pages []int
		for _, c := range omitted {
			pages = append(pages, c.PageNumbers()...)
		}
		res.Warnings = append(res.Warnings, models.ResultWarning{
			Code:    models.WarnChunksOmitted,
			Pages:   pages,
			Message: fmt.Sprintf("%d of %d chunks exceeded the prompt budget and were not sent", len(omitted), len(req.Chunks)),
		})
	}

	rendered := make([]string, 0, len(sent))
	for _, c := range sent {
		if r := c.Render(); r != "" {
			rendered = append(rendered, r)
		}
	}
	if len(rendered) == 0 {
		// Nothing legible to send: the extraction ran and found nothing.
		res.Meta.ChunksSent = 0
		return res, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if l.limiter != nil {
		if err := l.limiter.Wait(callCtx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w: %w", models.ErrBackendTimeout, err)
		}
	}

	start := time.Now()
	raw, err := l.backend.Complete(callCtx, models.CompletionRequest{
		System:    systemPrompt,
		Prompt:    BuildPrompt(rendered, req.PageCount),
		JSONOnly:  true,
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %w", models.ErrBackendTimeout, err)
		}
		return nil, err
	}
	l.logger.Debug("extract.backend.ok",
		"job_id", req.JobID,
		"backend", l.backend.Name(),
		"chunks_sent", len(sent),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	data, err := ValidateOutput(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrBackendResponse, err)
	}
	var out backendOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode output: %w", models.ErrBackendResponse, err)
	}

	idx := newLineIndex(sent)
	dropped := idx.apply(&out, res)
	if len(dropped) > 0 {
		res.Warnings = append(res.Warnings, models.ResultWarning{
			Code:    models.WarnUncitedValueDropped,
			Pages:   dropped,
			Message: "values citing lines outside the sent text were discarded",
		})
	}
	res.Confidence = meanConfidence(res.LineItems)
	return res, nil
}

// selectChunks returns the leading chunks whose combined rendered size fits
// budget (always at least the first) and the remainder.
func selectChunks(chunks []chunk.Chunk, budget int) (sent, omitted []chunk.Chunk) {
	total := 0
	for i, c := range chunks {
		size := utf8.RuneCountInString(c.Render())
		if i > 0 && total+size > budget {
			return chunks[:i], chunks[i:]
		}
		total += size
	}
	return chunks, nil
}

func meanConfidence(items []models.LineItem) float64 {
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, it := range items {
		sum += it.Confidence
	}
	return math.Round(sum/float64(len(items))*100) / 100
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
