package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/steelsched/internal/api/middleware"
	"github.com/kiranshivaraju/steelsched/internal/api/response"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	RootHandler        http.HandlerFunc
	HealthHandler      http.HandlerFunc
	SubmitHandler      http.HandlerFunc
	RunHandler         http.HandlerFunc
	GetJobHandler      http.HandlerFunc
	StatusHandler      http.HandlerFunc
	ArtifactHandler    http.HandlerFunc
	ResultHandler      http.HandlerFunc
	GetImportHandler   http.HandlerFunc
	ImportItemsHandler http.HandlerFunc
	ParseHandler       http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/", orNotImplemented(deps.RootHandler))
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitHandler))
		r.Post("/api/v1/jobs/run", orNotImplemented(deps.RunHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Post("/api/v1/jobs/{jobID}/run", orNotImplemented(deps.RunHandler))
		r.Get("/api/v1/jobs/{jobID}/status", orNotImplemented(deps.StatusHandler))
		r.Get("/api/v1/jobs/{jobID}/artifact", orNotImplemented(deps.ArtifactHandler))
		r.Get("/api/v1/jobs/{jobID}/result", orNotImplemented(deps.ResultHandler))

		r.Get("/api/v1/imports/{importID}", orNotImplemented(deps.GetImportHandler))
		r.Get("/api/v1/imports/{importID}/items", orNotImplemented(deps.ImportItemsHandler))

		r.Post("/api/v1/parse", orNotImplemented(deps.ParseHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, models.ErrCodeNotImplemented, jobs.Message(models.ErrCodeNotImplemented), nil)
	}
}
