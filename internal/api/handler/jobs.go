package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/internal/api/response"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// JobService defines the job operations the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, p jobs.SubmitParams) (*models.Job, error)
	Run(ctx context.Context, id uuid.UUID) (*jobs.RunResult, error)
	Job(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Status(ctx context.Context, id uuid.UUID) (models.JobStatus, error)
	Artifact(ctx context.Context, id uuid.UUID) ([]byte, error)
	Result(ctx context.Context, id uuid.UUID) ([]byte, error)
}

type submitRequest struct {
	SourceRef   string     `json:"source_ref"`
	Mode        string     `json:"mode"`
	ProjectID   *uuid.UUID `json:"project_id"`
	Priority    int        `json:"priority"`
	MaxAttempts int        `json:"max_attempts"`
}

type jobStatusResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid JSON body")
			return
		}
		if req.SourceRef == "" {
			badRequest(w, "source_ref is required")
			return
		}

		job, err := svc.Submit(r.Context(), jobs.SubmitParams{
			SourceRef:   req.SourceRef,
			Mode:        models.JobMode(req.Mode),
			ProjectID:   req.ProjectID,
			Priority:    req.Priority,
			MaxAttempts: req.MaxAttempts,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, jobStatusResponse{JobID: job.ID, Status: job.Status})
	}
}

// NewRunHandler returns an http.HandlerFunc that runs one attempt. The job id
// comes from the {jobID} route parameter or, when absent, the JSON body.
func NewRunHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id uuid.UUID
		if chi.URLParam(r, "jobID") != "" {
			var ok bool
			if id, ok = pathID(w, r, "jobID"); !ok {
				return
			}
		} else {
			var req struct {
				JobID string `json:"job_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				badRequest(w, "Invalid JSON body")
				return
			}
			parsed, err := uuid.Parse(req.JobID)
			if err != nil {
				badRequest(w, "job_id must be a valid UUID")
				return
			}
			id = parsed
		}

		res, err := svc.Run(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		job, err := svc.Job(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/status.
func NewStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		status, err := svc.Status(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, jobStatusResponse{JobID: id, Status: status})
	}
}

// NewArtifactHandler serves the stored artifact pack of a job.
func NewArtifactHandler(svc JobService) http.HandlerFunc {
	return storedJSON(svc.Artifact)
}

// NewResultHandler serves the stored extraction result of a job.
func NewResultHandler(svc JobService) http.HandlerFunc {
	return storedJSON(svc.Result)
}

func storedJSON(load func(context.Context, uuid.UUID) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		data, err := load(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !json.Valid(data) {
			writeError(w, r, errors.New("stored document is not valid JSON"))
			return
		}
		response.JSON(w, json.RawMessage(data))
	}
}
