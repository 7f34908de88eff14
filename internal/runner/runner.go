// Package runner assembles backtests and factor regressions from
// configuration: it loads datasets, builds the engine, and records the
// outcome in the results store and metrics registry.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/backtest"
	"github.com/newthinker/statarb/internal/config"
	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/cost"
	"github.com/newthinker/statarb/internal/dataset"
	"github.com/newthinker/statarb/internal/factor"
	"github.com/newthinker/statarb/internal/metrics"
	"github.com/newthinker/statarb/internal/notifier"
	"github.com/newthinker/statarb/internal/panel"
	"github.com/newthinker/statarb/internal/storage/results"
)

// Runner executes configured jobs against a dataset loader.
type Runner struct {
	data     config.DataConfig
	reg      config.RegressionConfig
	loader   *dataset.Loader
	results  *results.Store
	metrics  *metrics.Registry
	notifier *notifier.Registry
	logger   *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithResults persists every finished backtest.
func WithResults(store *results.Store) Option {
	return func(r *Runner) { r.results = store }
}

// WithMetrics records run metrics.
func WithMetrics(reg *metrics.Registry) Option {
	return func(r *Runner) { r.metrics = reg }
}

// WithNotifier reports finished runs to the registered notifiers.
func WithNotifier(reg *notifier.Registry) Option {
	return func(r *Runner) { r.notifier = reg }
}

// WithLogger sets the logger passed down to the engine.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a runner over the data and regression sections of cfg.
func New(cfg *config.Config, loader *dataset.Loader, opts ...Option) *Runner {
	r := &Runner{
		data:   cfg.Data,
		reg:    cfg.Regression,
		loader: loader,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report is the outcome of one backtest.
type Report struct {
	Result *backtest.Result            `json:"-"`
	Stats  backtest.Stats              `json:"stats"`
	Params config.BacktestConfig       `json:"params"`
	RunID  string                      `json:"run_id"`
	Ledger []results.LedgerRow         `json:"ledger"`
	Sector []backtest.SectorDiagnostic `json:"sectors,omitempty"`
}

// Backtest loads the datasets bt needs, runs the engine and records the run.
func (r *Runner) Backtest(ctx context.Context, bt config.BacktestConfig) (*Report, error) {
	start := time.Now()
	report, err := r.backtest(ctx, bt)
	status := "success"
	if err != nil {
		status = "failed"
	}
	if r.metrics != nil {
		r.metrics.RecordBacktest(bt.Strategy, status, time.Since(start).Seconds())
	}
	if err != nil {
		r.logger.Error("backtest failed", zap.String("strategy", bt.Strategy), zap.Error(err))
		r.notify(ctx, notifier.Event{Type: notifier.EventBacktestFailed, Strategy: bt.Strategy, Error: err.Error()})
		return nil, err
	}
	r.notify(ctx, notifier.Event{
		Type:     notifier.EventBacktestCompleted,
		RunID:    report.RunID,
		Strategy: report.Result.Strategy,
		Stats:    &report.Stats,
	})
	return report, nil
}

// notify delivers ev to every notifier. Delivery failures are logged and
// never fail the run.
func (r *Runner) notify(ctx context.Context, ev notifier.Event) {
	if r.notifier == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	for name, err := range r.notifier.NotifyAll(context.WithoutCancel(ctx), ev) {
		r.logger.Warn("notification failed",
			zap.String("notifier", name),
			zap.String("event", ev.Type),
			zap.Error(err),
		)
	}
}

func (r *Runner) backtest(ctx context.Context, bt config.BacktestConfig) (*Report, error) {
	if err := bt.Validate(); err != nil {
		return nil, err
	}
	universe, err := r.loader.LoadUniverse(ctx, r.data.Universe)
	if err != nil {
		return nil, err
	}

	market := backtest.Market{Price: universe.Price}
	if bt.Pricing == config.PricingBidAsk {
		if !universe.HasQuotes() {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("bidask pricing needs bid and ask quotes in %s", r.data.Universe))
		}
		market.Bid, market.Ask = universe.Bid, universe.Ask
	}

	cfg := backtest.Config{
		Forming: bt.Forming,
		Holding: bt.Holding,
		Capital: bt.Capital,
		Smooth:  bt.Smooth,
	}
	model := costModel(bt.Cost, universe.DollarVolume)
	opts := []backtest.Option{backtest.WithLogger(r.logger)}

	var engine *backtest.Engine
	switch bt.Strategy {
	case config.StrategyMomentum:
		f, err := bt.Filter.Func()
		if err != nil {
			return nil, err
		}
		engine, err = backtest.NewMomentum(cfg, market, f, model, opts...)
		if err != nil {
			return nil, err
		}
	case config.StrategyBeta:
		f, err := bt.Filter.Func()
		if err != nil {
			return nil, err
		}
		beta, err := r.loader.LoadTable(ctx, r.data.Beta)
		if err != nil {
			return nil, err
		}
		engine, err = backtest.NewBeta(cfg, market, beta.AlignPeriods(universe.Price.Periods), f, model, opts...)
		if err != nil {
			return nil, err
		}
	case config.StrategySector:
		sectors, err := r.sectors(ctx, bt, universe)
		if err != nil {
			return nil, err
		}
		engine, err = backtest.NewSectorRotation(cfg, market, sectors, model, opts...)
		if err != nil {
			return nil, err
		}
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown strategy %q", bt.Strategy))
	}

	res, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}
	stats := backtest.CalculateStats(res, bt.Capital, bt.PeriodsPerYear)
	report := &Report{
		Result: res,
		Stats:  stats,
		Params: bt,
		RunID:  res.RunID,
		Ledger: results.Ledger(res),
		Sector: res.Sectors,
	}

	if r.metrics != nil {
		r.metrics.RecordRun(res.Strategy, res.Len()-res.Start, res.TranchesOpened(), stats.TotalCost)
	}
	if r.results != nil {
		params, err := json.Marshal(bt)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
		run := results.Run{
			ID:          res.RunID,
			Strategy:    res.Strategy,
			CreatedAt:   time.Now().UTC(),
			Params:      string(params),
			Instruments: len(res.Columns),
			Stats:       stats,
		}
		if err := r.results.SaveRun(ctx, run, report.Ledger); err != nil {
			return nil, fmt.Errorf("saving run %s: %w", res.RunID, err)
		}
	}
	return report, nil
}

// sectors loads the sector-level score table and broadcasts it onto the
// universe through the per-period industry labels.
func (r *Runner) sectors(ctx context.Context, bt config.BacktestConfig, u *dataset.Universe) (backtest.Sectors, error) {
	indFilter, err := bt.IndustryFilter.Func()
	if err != nil {
		return backtest.Sectors{}, err
	}
	stockFilter, err := bt.StockFilter.Func()
	if err != nil {
		return backtest.Sectors{}, err
	}
	table, err := r.loader.LoadTable(ctx, r.data.Score)
	if err != nil {
		return backtest.Sectors{}, err
	}
	sectors := backtest.Sectors{
		Industry:       u.Industry,
		Catalogue:      bt.Industries,
		Score:          panel.Broadcast(table, u.Industry),
		IndustryFilter: indFilter,
		StockFilter:    stockFilter,
	}
	if r.data.SecondScore != "" {
		second, err := r.loader.LoadTable(ctx, r.data.SecondScore)
		if err != nil {
			return backtest.Sectors{}, err
		}
		sectors.SecondScore = second.AlignPeriods(u.Price.Periods)
	}
	return sectors, nil
}

func costModel(c config.CostConfig, totals []float64) cost.Model {
	switch c.Model {
	case config.CostQuadratic:
		return cost.Quadratic{Linear: c.Linear, Quadratic: c.Quadratic}
	case config.CostADV:
		return cost.ADV{Totals: totals, Min: c.Min, Max: c.Max}
	default:
		return cost.Linear{Rate: c.Rate}
	}
}

// RegressReport is the outcome of a rolling factor regression.
type RegressReport struct {
	Result     *factor.Result
	Keys       []string         // tables written
	Summaries  []factor.Summary // descriptive statistics of excess returns
	Validation []float64        // compounded value of trading the alpha signal
}

// Regress fits the rolling factor model, writes the alpha table and one
// beta table per factor, and optionally describes the excess returns and
// validates alpha as a sector signal with the industry filter of bt.
func (r *Runner) Regress(ctx context.Context, describe bool, bt config.BacktestConfig) (*RegressReport, error) {
	if r.reg.Factors == "" || r.reg.Returns == "" || r.reg.Output == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("regression factors, returns and output are required"))
	}
	factors, err := r.loader.LoadTable(ctx, r.reg.Factors)
	if err != nil {
		return nil, err
	}
	returns, err := r.loader.LoadTable(ctx, r.reg.Returns)
	if err != nil {
		return nil, err
	}

	rolling := factor.Rolling{Window: r.reg.Window, MinObs: r.reg.MinObs, Logger: r.logger}
	res, err := rolling.Regress(ctx, factors, returns, r.reg.RiskFree)
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		for status, n := range res.Status {
			r.metrics.RecordRegressionFits(status.String(), n)
		}
	}

	report := &RegressReport{Result: res}
	if err := r.loader.SaveTable(ctx, r.reg.Output, res.Alpha); err != nil {
		return nil, err
	}
	report.Keys = append(report.Keys, r.reg.Output)
	for _, name := range res.Factors {
		key := betaKey(r.reg.Output, name)
		if err := r.loader.SaveTable(ctx, key, res.Betas[name]); err != nil {
			return nil, err
		}
		report.Keys = append(report.Keys, key)
	}

	if describe {
		excess, err := factor.ExcessReturns(factors, returns, r.reg.RiskFree)
		if err != nil {
			return nil, err
		}
		report.Summaries = factor.Describe(excess)

		f, err := bt.IndustryFilter.Func()
		if err != nil {
			return nil, err
		}
		report.Validation, err = factor.ValidateSignal(res.Alpha, returns.AlignPeriods(res.Alpha.Periods), f)
		if err != nil {
			return nil, err
		}
	}
	r.notify(ctx, notifier.Event{Type: notifier.EventRegressionCompleted, Tables: report.Keys})
	return report, nil
}

// betaKey derives the beta table key from the alpha output key:
// alpha/ind10.parquet → alpha/ind10_beta_Mkt-RF.parquet.
func betaKey(output, factorName string) string {
	ext := ".parquet"
	base := strings.TrimSuffix(output, ext)
	return base + "_beta_" + factorName + ext
}
