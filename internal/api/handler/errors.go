package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/internal/api/response"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

var statusByCode = map[models.ErrorCode]int{
	models.ErrCodeInvalidRequest:    http.StatusBadRequest,
	models.ErrCodeNotFound:          http.StatusNotFound,
	models.ErrCodeAlreadyRunning:    http.StatusConflict,
	models.ErrCodeJobFinished:       http.StatusConflict,
	models.ErrCodeStaleHeartbeat:    http.StatusConflict,
	models.ErrCodeMaxAttempts:       http.StatusUnprocessableEntity,
	models.ErrCodeUnsupportedFormat: http.StatusUnsupportedMediaType,
	models.ErrCodeDownloadFailed:    http.StatusBadGateway,
	models.ErrCodeUploadFailed:      http.StatusBadGateway,
	models.ErrCodeStoreFailed:       http.StatusServiceUnavailable,
}

// writeError renders err with its public code and fixed message. Causes are
// logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	jerr := jobs.PublicError(err)
	status, ok := statusByCode[jerr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "code", jerr.Code, "error", err)
	}
	response.Error(w, status, jerr.Code, jerr.Message, nil)
}

func badRequest(w http.ResponseWriter, msg string) {
	response.Error(w, http.StatusBadRequest, models.ErrCodeInvalidRequest, msg, nil)
}

// pathID parses a UUID route parameter, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		badRequest(w, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
