package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/newthinker/statarb/internal/api/response"
	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/storage/results"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// RunStore reads persisted runs.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]results.Run, error)
	GetRun(ctx context.Context, id string) (*results.Run, []results.LedgerRow, error)
}

// RunsHandler serves the persisted run history.
type RunsHandler struct {
	store RunStore
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(store RunStore) *RunsHandler {
	return &RunsHandler{store: store}
}

// List returns the most recent runs. ?limit= caps the count.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest,
				core.Errorf(core.ErrConfigInvalid, "limit must be a positive integer, got %q", s))
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.List(w, runs)
}

// Get returns one run with its per-period ledger.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, ledger, err := h.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"run":    run,
		"ledger": ledger,
	})
}
