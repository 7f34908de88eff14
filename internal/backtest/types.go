package backtest

import (
	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/panel"
)

// Config holds the simulation parameters shared by every strategy.
type Config struct {
	Forming int     // periods of history before a signal is valid
	Holding int     // tranche lifetime, also the number of live tranches
	Capital float64 // gross notional per holding window; each tranche gets Capital/Holding
	Smooth  float64 // weight on the score from Holding periods ago, in [0, 1)
}

// Validate rejects parameters that cannot produce a meaningful run.
func (c Config) Validate() error {
	if c.Forming < 1 {
		return core.Errorf(core.ErrConfigInvalid, "forming must be >= 1, got %d", c.Forming)
	}
	if c.Holding < 1 {
		return core.Errorf(core.ErrConfigInvalid, "holding must be >= 1, got %d", c.Holding)
	}
	if !(c.Capital > 0) {
		return core.Errorf(core.ErrConfigInvalid, "capital must be > 0, got %v", c.Capital)
	}
	if c.Smooth < 0 || c.Smooth >= 1 {
		return core.Errorf(core.ErrConfigInvalid, "smooth must be in [0, 1), got %v", c.Smooth)
	}
	return nil
}

// Result is the ledger of a single run. Slices are indexed by period;
// periods before Start carry zero cash and NaN value.
type Result struct {
	RunID    string
	Strategy string
	Periods  []int
	Columns  []string
	Start    int

	Cash     []float64
	Value    []float64 // mark-to-market of live tranches plus cash
	Cost     []float64 // transaction cost charged in the period
	Turnover []float64 // gross dollar value traded in the period
	Opened   []bool    // whether a tranche opened in the period

	Shares  *panel.Panel // shares opened in each period
	Weights *panel.Panel // dollar allocation opened in each period

	Sectors []SectorDiagnostic // per-period sector totals, sector rotation only
}

// Len returns the number of periods in the run.
func (r *Result) Len() int { return len(r.Periods) }

// FinalValue returns the last recorded portfolio value.
func (r *Result) FinalValue() float64 {
	if len(r.Value) == 0 {
		return 0
	}
	return r.Value[len(r.Value)-1]
}

// TranchesOpened counts the periods in which a tranche opened.
func (r *Result) TranchesOpened() int {
	var n int
	for _, o := range r.Opened {
		if o {
			n++
		}
	}
	return n
}

// Stats holds performance statistics of a run's value series
type Stats struct {
	Periods              int     `json:"periods"`
	FinalValue           float64 `json:"final_value"`
	TotalReturn          float64 `json:"total_return"` // final value over capital
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"` // largest peak-to-trough decline of 1 + value/capital
	TotalCost            float64 `json:"total_cost"`
	Turnover             float64 `json:"turnover"`
}
