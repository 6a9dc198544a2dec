package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/internal/api/response"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// ImportReader loads import batches.
type ImportReader interface {
	Import(ctx context.Context, id uuid.UUID) (*jobs.ImportView, error)
}

// NewGetImportHandler returns an http.HandlerFunc for GET /api/v1/imports/{importID}.
func NewGetImportHandler(svc ImportReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "importID")
		if !ok {
			return
		}
		view, err := svc.Import(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, view)
	}
}

// NewListImportItemsHandler returns a paginated view of a batch's items.
func NewListImportItemsHandler(svc ImportReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "importID")
		if !ok {
			return
		}
		page, ok := queryInt(w, r, "page", 1, 1, 0)
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit", defaultPageLimit, 1, maxPageLimit)
		if !ok {
			return
		}

		view, err := svc.Import(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		total := len(view.Items)
		start := min((page-1)*limit, total)
		end := min(start+limit, total)
		response.Collection(w, view.Items[start:end], response.Page(page, limit, total))
	}
}

// queryInt reads an optional integer parameter bounded by [lo, hi]; hi <= 0
// means unbounded.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		if hi > 0 {
			badRequest(w, name+" must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
		} else {
			badRequest(w, name+" must be at least "+strconv.Itoa(lo))
		}
		return 0, false
	}
	return n, true
}
