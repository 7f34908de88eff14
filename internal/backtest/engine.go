// Package backtest simulates staggered-tranche cross-sectional strategies
// over period × instrument panels.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/cost"
	"github.com/newthinker/statarb/internal/filter"
	"github.com/newthinker/statarb/internal/panel"
)

var nan = math.NaN()

// Strategy names recorded on results.
const (
	StrategyMomentum = "momentum"
	StrategyBeta     = "beta"
	StrategySector   = "sector"
	StrategyCustom   = "custom"
)

// Market holds the price inputs. Bid and Ask are optional but must be given
// together; when present the engine trades and marks at the touch.
type Market struct {
	Price *panel.Panel
	Bid   *panel.Panel
	Ask   *panel.Panel
}

func (m Market) columns() ([][]string, error) {
	if m.Price == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "price panel is required")
	}
	if (m.Bid == nil) != (m.Ask == nil) {
		return nil, core.Errorf(core.ErrConfigInvalid, "bid and ask must be given together")
	}
	sets := [][]string{m.Price.Columns}
	if m.Bid != nil {
		sets = append(sets, m.Bid.Columns, m.Ask.Columns)
	}
	return sets, nil
}

func (m Market) pricing(columns []string) (Pricing, error) {
	price := m.Price.Select(columns)
	if m.Bid == nil {
		return NewLastPrice(price), nil
	}
	bid, ask := m.Bid.Select(columns), m.Ask.Select(columns)
	if err := price.SameAxis(bid); err != nil {
		return nil, err
	}
	return NewBidAsk(bid, ask)
}

// Engine runs one simulation. It is not safe for concurrent use and can be
// run only once.
type Engine struct {
	name      string
	cfg       Config
	pricing   Pricing
	weighting Weighting
	cost      cost.Model
	periods   []int
	columns   []string
	logger    *zap.Logger
	ran       bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithName sets the strategy name recorded on the result.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// New builds an engine from explicit pricing and weighting capabilities.
// Both must share the same period and instrument axes.
func New(cfg Config, pricing Pricing, weighting Weighting, model cost.Model, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pricing == nil || weighting == nil || model == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "pricing, weighting and cost model are required")
	}
	periods, columns := pricing.Axis()
	wp, wc := weighting.Axis()
	if err := (&panel.Panel{Periods: periods, Columns: columns}).SameAxis(&panel.Panel{Periods: wp, Columns: wc}); err != nil {
		return nil, fmt.Errorf("weighting axes: %w", err)
	}
	if len(columns) == 0 {
		return nil, core.ErrEmptyUniverse
	}
	if len(periods) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no periods to simulate")
	}

	e := &Engine{
		name:      StrategyCustom,
		cfg:       cfg,
		pricing:   pricing,
		weighting: weighting,
		cost:      model,
		periods:   periods,
		columns:   columns,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewMomentum ranks instruments on their trailing forming-1 period return.
func NewMomentum(cfg Config, market Market, f filter.Func, model cost.Model, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sets, err := market.columns()
	if err != nil {
		return nil, err
	}
	columns, err := universe(sets...)
	if err != nil {
		return nil, err
	}
	pricing, err := market.pricing(columns)
	if err != nil {
		return nil, err
	}
	score := market.Price.Select(columns).PctChange(cfg.Forming - 1)
	weighting := NewFlatWeighting(score, f, cfg)
	return New(cfg, pricing, weighting, model, append([]Option{WithName(StrategyMomentum)}, opts...)...)
}

// NewBeta goes long low-beta instruments: the score is the negated beta.
// The beta panel is already formed, so Forming is fixed to 1.
func NewBeta(cfg Config, market Market, beta *panel.Panel, f filter.Func, model cost.Model, opts ...Option) (*Engine, error) {
	cfg.Forming = 1
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if beta == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "beta panel is required")
	}
	sets, err := market.columns()
	if err != nil {
		return nil, err
	}
	columns, err := universe(append(sets, beta.Columns)...)
	if err != nil {
		return nil, err
	}
	pricing, err := market.pricing(columns)
	if err != nil {
		return nil, err
	}
	score := beta.Select(columns).Negate()
	weighting := NewFlatWeighting(score, f, cfg)
	return New(cfg, pricing, weighting, model, append([]Option{WithName(StrategyBeta)}, opts...)...)
}

// Sectors configures the two-level sector rotation.
type Sectors struct {
	Industry  *panel.Labels // per-period sector label of each instrument
	Catalogue []string      // sectors eligible for allocation
	// Score is the sector-level score broadcast onto member instruments.
	Score *panel.Panel
	// SecondScore ranks stocks inside a sector. Defaults to trailing momentum.
	SecondScore    *panel.Panel
	IndustryFilter filter.Func
	StockFilter    filter.Func
}

// NewSectorRotation allocates across sectors with IndustryFilter and within
// each sector with StockFilter.
func NewSectorRotation(cfg Config, market Market, sectors Sectors, model cost.Model, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sectors.Industry == nil || sectors.Score == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "industry labels and sector score are required")
	}
	if len(sectors.Catalogue) == 0 {
		return nil, core.Errorf(core.ErrConfigMissing, "sector catalogue is empty")
	}
	if sectors.IndustryFilter == nil || sectors.StockFilter == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "industry and stock filters are required")
	}
	sets, err := market.columns()
	if err != nil {
		return nil, err
	}
	sets = append(sets, sectors.Industry.Columns, sectors.Score.Columns)
	if sectors.SecondScore != nil {
		sets = append(sets, sectors.SecondScore.Columns)
	}
	columns, err := universe(sets...)
	if err != nil {
		return nil, err
	}
	pricing, err := market.pricing(columns)
	if err != nil {
		return nil, err
	}

	price := market.Price.Select(columns)
	industry := sectors.Industry.Select(columns)
	score := sectors.Score.Select(columns)
	second := price.PctChange(max(cfg.Forming-1, 1))
	if sectors.SecondScore != nil {
		second = sectors.SecondScore.Select(columns)
	}
	for _, p := range []*panel.Panel{score, second} {
		if err := price.SameAxis(p); err != nil {
			return nil, err
		}
	}
	if err := industry.SameAxis(price); err != nil {
		return nil, err
	}

	weighting := NewSectorWeighting(industry, sectors.Catalogue, score, second, sectors.IndustryFilter, sectors.StockFilter)
	return New(cfg, pricing, weighting, model, append([]Option{WithName(StrategySector)}, opts...)...)
}

func universe(sets ...[]string) ([]string, error) {
	columns := panel.Intersect(sets...)
	if len(columns) == 0 {
		return nil, core.ErrEmptyUniverse
	}
	return columns, nil
}

// Columns returns the instrument universe the engine trades.
func (e *Engine) Columns() []string { return e.columns }

// Run simulates every period from Forming-1 to the last one.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.ran {
		return nil, core.ErrAlreadyRun
	}
	e.ran = true

	n, m := len(e.periods), len(e.columns)
	start := e.cfg.Forming - 1
	res := e.newResult(start)
	tranche := e.cfg.Capital / float64(e.cfg.Holding)
	ring := newTrancheRing(e.cfg.Holding, m)
	began := time.Now()

	e.logger.Info("backtest started",
		zap.String("run_id", res.RunID),
		zap.String("strategy", e.name),
		zap.Int("periods", n),
		zap.Int("instruments", m),
		zap.Int("forming", e.cfg.Forming),
		zap.Int("holding", e.cfg.Holding),
		zap.String("cost_model", e.cost.Name()),
	)

	var cash float64
	for t := start; t < n; t++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		e.pricing.Update(t)
		weights, ok := e.weighting.Weights(t)
		open := ok && t <= n-e.cfg.Holding

		opened := make([]float64, m)
		alloc := make([]float64, m)
		if open {
			for i, w := range weights {
				w = panel.Clean(w) * tranche
				if w == 0 {
					continue
				}
				opened[i] = panel.Clean(w / e.pricing.Entry(i, w))
				if opened[i] != 0 {
					alloc[i] = w
				}
			}
		}

		// The slot about to be overwritten holds the tranche opened at
		// t-holding, which closes now.
		closing := ring.slot(t)
		trade := make([]float64, m)
		var outflow, turnover float64
		for i := range trade {
			d := opened[i] - closing[i]
			if d == 0 {
				continue
			}
			v := panel.Clean(d * e.pricing.Trade(i, d))
			outflow += v
			trade[i] = math.Abs(v)
			turnover += trade[i]
		}
		var paid float64
		for _, c := range e.cost.Cost(t, trade) {
			paid += panel.Clean(c)
		}
		cash -= outflow + paid
		ring.put(t, opened)

		var mark float64
		for i, q := range ring.live() {
			if q != 0 {
				mark += panel.Clean(q * e.pricing.Mark(i, q))
			}
		}

		res.Cash[t] = cash
		res.Value[t] = mark + cash
		res.Cost[t] = paid
		res.Turnover[t] = turnover
		res.Opened[t] = open
		copy(res.Shares.Data[t], opened)
		copy(res.Weights.Data[t], alloc)

		if open {
			e.logger.Debug("tranche opened",
				zap.Int("period", e.periods[t]),
				zap.Float64("turnover", turnover),
				zap.Float64("cost", paid),
			)
		}
	}

	if sw, ok := e.weighting.(*SectorWeighting); ok {
		res.Sectors = sw.Diagnostics()
	}

	e.logger.Info("backtest finished",
		zap.String("run_id", res.RunID),
		zap.Float64("final_value", res.FinalValue()),
		zap.Int("tranches", res.TranchesOpened()),
		zap.Duration("elapsed", time.Since(began)),
	)
	return res, nil
}

func (e *Engine) newResult(start int) *Result {
	n := len(e.periods)
	res := &Result{
		RunID:    uuid.NewString(),
		Strategy: e.name,
		Periods:  append([]int(nil), e.periods...),
		Columns:  append([]string(nil), e.columns...),
		Start:    start,
		Cash:     make([]float64, n),
		Value:    nanRow(n),
		Cost:     make([]float64, n),
		Turnover: make([]float64, n),
		Opened:   make([]bool, n),
		Shares:   zeroPanel(e.periods, e.columns),
		Weights:  zeroPanel(e.periods, e.columns),
	}
	return res
}

func zeroPanel(periods []int, columns []string) *panel.Panel {
	p := panel.New(periods, columns)
	for _, row := range p.Data {
		for i := range row {
			row[i] = 0
		}
	}
	return p
}

// trancheRing keeps the share rows of the live tranches. Row t mod holding
// holds the tranche opened at t.
type trancheRing struct {
	rows [][]float64
	sum  []float64
}

func newTrancheRing(holding, width int) *trancheRing {
	rows := make([][]float64, holding)
	for k := range rows {
		rows[k] = make([]float64, width)
	}
	return &trancheRing{rows: rows, sum: make([]float64, width)}
}

// slot returns the row that period t will overwrite.
func (r *trancheRing) slot(t int) []float64 { return r.rows[t%len(r.rows)] }

func (r *trancheRing) put(t int, shares []float64) {
	copy(r.slot(t), shares)
}

// live returns the summed shares across all live tranches.
func (r *trancheRing) live() []float64 {
	for i := range r.sum {
		r.sum[i] = 0
	}
	for _, row := range r.rows {
		for i, q := range row {
			r.sum[i] += q
		}
	}
	return r.sum
}
