// Package api implements the JSON handlers of the HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/api/job"
	"github.com/newthinker/statarb/internal/api/response"
	"github.com/newthinker/statarb/internal/config"
	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/metrics"
	"github.com/newthinker/statarb/internal/runner"
)

const (
	jobTypeBacktest = "backtest"
	backtestTimeout = 5 * time.Minute
)

// Backtester runs one configured backtest.
type Backtester interface {
	Backtest(ctx context.Context, bt config.BacktestConfig) (*runner.Report, error)
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobStore *job.Store
	runner   Backtester
	defaults config.BacktestConfig
	metrics  *metrics.Registry
	logger   *zap.Logger
	timeout  time.Duration
}

// NewBacktestHandler creates a new backtest handler. Request bodies are
// applied on top of defaults. metrics may be nil.
func NewBacktestHandler(
	jobStore *job.Store,
	runner Backtester,
	defaults config.BacktestConfig,
	reg *metrics.Registry,
	logger *zap.Logger,
) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{
		jobStore: jobStore,
		runner:   runner,
		defaults: defaults,
		metrics:  reg,
		logger:   logger,
		timeout:  backtestTimeout,
	}
}

// Create validates the requested parameters and starts a backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	bt := h.defaults
	bt.Industries = append([]string(nil), h.defaults.Industries...)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bt); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}
	if err := bt.Validate(); err != nil {
		response.Fail(w, err)
		return
	}

	j := h.jobStore.Create(jobTypeBacktest)
	h.syncActive()

	go h.runBacktest(j.ID, bt)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// runBacktest executes the backtest and updates job status.
func (h *BacktestHandler) runBacktest(jobID string, bt config.BacktestConfig) {
	defer h.syncActive()

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	report, err := h.runner.Backtest(ctx, bt)

	if err != nil {
		h.logger.Warn("backtest job failed", zap.String("job_id", jobID), zap.Error(err))
		h.jobStore.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			var coreErr *core.Error
			if errors.As(err, &coreErr) {
				j.Error = coreErr
			} else {
				j.Error = core.WrapError(core.ErrRunFailed, err)
			}
		})
		return
	}

	h.logger.Info("backtest job complete",
		zap.String("job_id", jobID),
		zap.String("run_id", report.RunID),
	)
	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = report
	})
}

func (h *BacktestHandler) syncActive() {
	if h.metrics != nil {
		h.metrics.SetJobsActive(jobTypeBacktest, h.jobStore.Active(jobTypeBacktest))
	}
}

// GetStatus returns the status of a backtest job.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobStore.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	resp := map[string]any{
		"job_id":   j.ID,
		"status":   j.Status,
		"progress": j.Progress,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		detail := map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
		if j.Error.Cause != nil {
			detail["cause"] = j.Error.Cause.Error()
		}
		resp["error"] = detail
	}

	response.JSON(w, http.StatusOK, resp)
}

// List returns the tracked backtest jobs without their results.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobStore.List()
	out := make([]job.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Type != jobTypeBacktest {
			continue
		}
		j.Result = nil
		out = append(out, j)
	}
	response.List(w, out)
}
