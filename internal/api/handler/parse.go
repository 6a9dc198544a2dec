package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/internal/api/response"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// DefaultMaxUploadBytes caps direct uploads.
const DefaultMaxUploadBytes int64 = 50 << 20

// Ingester runs uploaded documents through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, p jobs.IngestParams) (*jobs.RunResult, error)
}

// NewParseHandler returns an http.HandlerFunc for POST /api/v1/parse. The
// multipart form carries the document as "file" plus optional "mode" and
// "project_id" fields.
func NewParseHandler(svc Ingester, maxBytes int64) http.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, models.ErrCodeInvalidRequest,
					"file exceeds the upload limit", nil)
				return
			}
			badRequest(w, "request must be multipart/form-data")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			badRequest(w, "file could not be read")
			return
		}

		params := jobs.IngestParams{
			Filename:    header.Filename,
			Data:        data,
			ContentType: header.Header.Get("Content-Type"),
			Mode:        models.JobMode(r.FormValue("mode")),
		}
		if raw := r.FormValue("project_id"); raw != "" {
			pid, err := uuid.Parse(raw)
			if err != nil {
				badRequest(w, "project_id must be a valid UUID")
				return
			}
			params.ProjectID = &pid
		}

		res, err := svc.Ingest(r.Context(), params)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}
