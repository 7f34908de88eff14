// Package api serves the backtest job API over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handler "github.com/newthinker/statarb/internal/api/handler/api"
	"github.com/newthinker/statarb/internal/api/job"
	"github.com/newthinker/statarb/internal/api/middleware"
	"github.com/newthinker/statarb/internal/api/response"
	"github.com/newthinker/statarb/internal/config"
	"github.com/newthinker/statarb/internal/metrics"
)

// Server represents the HTTP server of the job API.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	jobs       *job.Store
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string
	MaxJobs     int
	JobTTL      time.Duration
}

// ConfigFrom maps the loaded configuration onto the server settings.
func ConfigFrom(cfg *config.Config) Config {
	out := Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		APIKey:  cfg.Server.APIKey,
		MaxJobs: cfg.Server.MaxJobs,
		JobTTL:  time.Duration(cfg.Server.JobTTLHours) * time.Hour,
	}
	if cfg.Metrics.Enabled {
		out.MetricsPath = cfg.Metrics.Path
	}
	return out
}

// Dependencies holds the components the routes call into. Runs and
// Datasets are optional; their routes are only mounted when set.
type Dependencies struct {
	Backtester handler.Backtester
	Runs       handler.RunStore
	Datasets   handler.DatasetLister
	Metrics    *metrics.Registry
	Defaults   config.BacktestConfig
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Backtester == nil {
		return nil, fmt.Errorf("backtester is required")
	}
	maxJobs := cfg.MaxJobs
	if maxJobs < 1 {
		maxJobs = 100
	}

	s := &Server{
		logger: logger,
		mux:    http.NewServeMux(),
		jobs:   job.NewStore(maxJobs, cfg.JobTTL),
	}
	s.setupRoutes(cfg, deps)

	var h http.Handler = s.mux
	h = metrics.LoggingMiddleware(logger)(h)
	if deps.Metrics != nil {
		h = metrics.HTTPMiddleware(deps.Metrics)(h)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes. Everything under /api/v1 requires
// the API key when one is configured.
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	auth := middleware.APIKeyAuth(cfg.APIKey)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	backtests := handler.NewBacktestHandler(s.jobs, deps.Backtester, deps.Defaults, deps.Metrics, s.logger)
	s.mux.Handle("POST /api/v1/backtests", protect(backtests.Create))
	s.mux.Handle("GET /api/v1/backtests", protect(backtests.List))
	s.mux.Handle("GET /api/v1/backtests/{id}", protect(backtests.GetStatus))

	if deps.Runs != nil {
		runs := handler.NewRunsHandler(deps.Runs)
		s.mux.Handle("GET /api/v1/runs", protect(runs.List))
		s.mux.Handle("GET /api/v1/runs/{id}", protect(runs.Get))
	}
	if deps.Datasets != nil {
		datasets := handler.NewDatasetsHandler(deps.Datasets)
		s.mux.Handle("GET /api/v1/datasets", protect(datasets.List))
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if cfg.MetricsPath != "" && deps.Metrics != nil {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}
}

// Start starts the HTTP server and a janitor that expires finished jobs.
// It returns when the server stops.
func (s *Server) Start(ctx context.Context) error {
	go s.purgeJobs(ctx)

	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) purgeJobs(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.jobs.Purge(); n > 0 {
				s.logger.Debug("expired jobs purged", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
