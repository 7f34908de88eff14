package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestLabels returns the label sets of http_requests_total.
func requestLabels(t *testing.T, reg *Registry) []map[string]string {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	var out []map[string]string
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			out = append(out, labelMap(m))
		}
	}
	return out
}

func labelMap(m *dto.Metric) map[string]string {
	labels := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	return labels
}

func TestHTTPMiddleware_StatusClass(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"ok", http.StatusOK, "2xx"},
		{"accepted", http.StatusAccepted, "2xx"},
		{"not found", http.StatusNotFound, "4xx"},
		{"unprocessable", http.StatusUnprocessableEntity, "4xx"},
		{"internal", http.StatusInternalServerError, "5xx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			h := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
			assert.Equal(t, tt.status, w.Code)

			labels := requestLabels(t, reg)
			require.Len(t, labels, 1)
			assert.Equal(t, tt.want, labels[0]["status"])
			assert.Equal(t, "/api/v1/runs", labels[0]["path"])
		})
	}
}

func TestHTTPMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := NewRegistry()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := HTTPMiddleware(reg)(mux)

	for _, id := range []string{"a1", "b2", "c3"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id, nil))
	}

	labels := requestLabels(t, reg)
	require.Len(t, labels, 1, "run ids must not create new series")
	assert.Equal(t, "GET /api/v1/runs/{id}", labels[0]["path"])
}

func TestHTTPMiddleware_UnmatchedRouteUsesPath(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(http.NewServeMux())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	labels := requestLabels(t, reg)
	require.Len(t, labels, 1)
	assert.Equal(t, "/nowhere", labels[0]["path"])
	assert.Equal(t, "4xx", labels[0]["status"])
}

func TestHTTPMiddleware_TracksInFlight(t *testing.T) {
	reg := NewRegistry()

	inFlight := func() float64 {
		mfs, err := reg.Gather()
		require.NoError(t, err)
		for _, mf := range mfs {
			if mf.GetName() == "http_requests_in_flight" {
				return mf.GetMetric()[0].GetGauge().GetValue()
			}
		}
		return -1
	}

	var during float64
	h := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = inFlight()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/backtests", nil))

	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, inFlight())
}
