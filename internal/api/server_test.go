package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/api/response"
	"github.com/newthinker/statarb/internal/backtest"
	"github.com/newthinker/statarb/internal/config"
	"github.com/newthinker/statarb/internal/metrics"
	"github.com/newthinker/statarb/internal/runner"
)

type stubRunner struct{}

func (stubRunner) Backtest(ctx context.Context, bt config.BacktestConfig) (*runner.Report, error) {
	return &runner.Report{RunID: "run-1", Params: bt, Stats: backtest.Stats{Periods: 1}}, nil
}

type stubDatasets []string

func (s stubDatasets) List(ctx context.Context, prefix string) ([]string, error) {
	return s, nil
}

func newTestServer(t *testing.T, apiKey string) (*Server, *metrics.Registry) {
	t.Helper()
	reg := metrics.NewRegistry()
	srv, err := NewServer(Config{
		Host:        "localhost",
		Port:        0,
		APIKey:      apiKey,
		MetricsPath: "/metrics",
	}, Dependencies{
		Backtester: stubRunner{},
		Datasets:   stubDatasets{"universe.parquet"},
		Metrics:    reg,
		Defaults:   config.Defaults().Backtest,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, reg
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, "test-key")

	w := serve(srv, httptest.NewRequest("GET", "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestServer_APIAuth_Required(t *testing.T) {
	srv, _ := newTestServer(t, "test-key")

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/datasets", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}
}

func TestServer_APIAuth_ValidKey(t *testing.T) {
	srv, _ := newTestServer(t, "test-key")

	req := httptest.NewRequest("GET", "/api/v1/datasets", nil)
	req.Header.Set("X-API-Key", "test-key")
	w := serve(srv, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", w.Code)
	}
}

func TestServer_APIAuth_Disabled(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/datasets", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with disabled auth, got %d", w.Code)
	}
}

func TestServer_RunsNotMounted(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/runs", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a results store, got %d", w.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := serve(srv, httptest.NewRequest("DELETE", "/api/v1/backtests", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestServer_BacktestRoundTrip(t *testing.T) {
	srv, reg := newTestServer(t, "")

	w := serve(srv, httptest.NewRequest("POST", "/api/v1/backtests", bytes.NewBufferString(`{"holding": 2}`)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	id := resp.Data.(map[string]any)["job_id"].(string)

	w = serve(srv, httptest.NewRequest("GET", "/api/v1/backtests/"+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "path" && strings.Contains(lp.GetValue(), id) {
					t.Errorf("job ID leaked into path label %q", lp.GetValue())
				}
			}
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, "test-key")
	serve(srv, httptest.NewRequest("GET", "/api/health", nil))

	w := serve(srv, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "http_requests_total") {
		t.Error("expected HTTP metrics in exposition")
	}
}

func TestNewServer_RequiresBacktester(t *testing.T) {
	if _, err := NewServer(Config{}, Dependencies{}, nil); err == nil {
		t.Error("expected error without a backtester")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.APIKey = "k"

	got := ConfigFrom(cfg)
	if got.Port != 8080 || got.APIKey != "k" || got.MetricsPath != "/metrics" {
		t.Errorf("unexpected server config %+v", got)
	}
	if got.JobTTL.Hours() != 1 {
		t.Errorf("expected 1h TTL, got %v", got.JobTTL)
	}

	cfg.Metrics.Enabled = false
	if ConfigFrom(cfg).MetricsPath != "" {
		t.Error("expected metrics route disabled")
	}
}
