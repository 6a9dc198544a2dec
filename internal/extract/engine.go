package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Engine runs the extractor chosen at construction and degrades to the
// fallback shape when it fails. Extract never returns an error.
type Engine struct {
	primary StructuredExtractor
	logger  *slog.Logger
}

// NewEngine returns an engine backed by a LiveExtractor when backend is
// non-nil and by a FallbackExtractor otherwise.
func NewEngine(backend models.AIBackend, logger *slog.Logger, opts ...LiveOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == nil {
		return &Engine{primary: FallbackExtractor{}, logger: logger}
	}
	opts = append([]LiveOption{WithLogger(logger)}, opts...)
	return &Engine{primary: NewLiveExtractor(backend, opts...), logger: logger}
}

// NewEngineWith wraps an arbitrary extractor.
func NewEngineWith(primary StructuredExtractor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{primary: primary, logger: logger}
}

// Live reports whether a backend is configured.
func (e *Engine) Live() bool {
	_, fallback := e.primary.(FallbackExtractor)
	return !fallback
}

func (e *Engine) Extract(ctx context.Context, req Request) *models.ExtractionResult {
	if !e.Live() {
		res := fallbackResult(req)
		res.Meta.FallbackReason = models.ErrCodeBackendUnavailable
		return res
	}

	res, err := e.safeExtract(ctx, req)
	if err != nil {
		reason := FallbackReason(err)
		e.logger.Warn("extract.fallback",
			"job_id", req.JobID,
			"attempt", req.Attempt,
			"backend", e.primary.Name(),
			"reason", reason,
			"error", err,
		)
		res = fallbackResult(req)
		res.Meta.Backend = e.primary.Name()
		res.Meta.FallbackReason = reason
		return res
	}

	if len(req.LowConfidencePages) > 0 {
		res.Warnings = append(res.Warnings, models.ResultWarning{
			Code:    models.WarnLowConfidencePages,
			Pages:   req.LowConfidencePages,
			Message: "some pages had little or no legible text",
		})
	}
	return res
}

func (e *Engine) safeExtract(ctx context.Context, req Request) (res *models.ExtractionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: panic: %v", models.ErrBackendResponse, r)
		}
	}()
	return e.primary.Extract(ctx, req)
}

// FallbackReason maps an extraction failure to the code recorded in meta.fallback_reason.
func FallbackReason(err error) models.ErrorCode {
	switch {
	case errors.Is(err, models.ErrBackendTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.ErrCodeTimeout
	case errors.Is(err, models.ErrBackendUnavailable):
		return models.ErrCodeBackendUnavailable
	default:
		return models.ErrCodeBackendError
	}
}
