package api

import (
	"context"
	"net/http"

	"github.com/newthinker/statarb/internal/api/response"
)

// DatasetLister lists dataset keys in the archive.
type DatasetLister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// DatasetsHandler exposes the archive contents.
type DatasetsHandler struct {
	datasets DatasetLister
}

// NewDatasetsHandler creates a new datasets handler.
func NewDatasetsHandler(datasets DatasetLister) *DatasetsHandler {
	return &DatasetsHandler{datasets: datasets}
}

// List returns the dataset keys under ?prefix=.
func (h *DatasetsHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.datasets.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.List(w, keys)
}
