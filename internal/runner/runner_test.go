package runner

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/statarb/internal/backtest"
	"github.com/newthinker/statarb/internal/config"
	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/cost"
	"github.com/newthinker/statarb/internal/dataset"
	"github.com/newthinker/statarb/internal/metrics"
	"github.com/newthinker/statarb/internal/notifier"
	"github.com/newthinker/statarb/internal/panel"
	"github.com/newthinker/statarb/internal/storage/archive"
	"github.com/newthinker/statarb/internal/storage/results"
)

var tickers = []struct {
	name     string
	industry string
	drift    float64
}{
	{"AAA", "Manuf", 0.02},
	{"BBB", "Manuf", -0.01},
	{"CCC", "HiTec", 0.03},
	{"DDD", "HiTec", 0.005},
}

const periods = 10

func periodKey(t int) int { return 201001 + t }

type fixture struct {
	cfg     *config.Config
	loader  *dataset.Loader
	store   *results.Store
	metrics *metrics.Registry
	runner  *Runner
}

func newFixture(t *testing.T, quotes bool) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := config.Defaults()
	cfg.Data.Path = t.TempDir()
	cfg.Data.Beta = "beta.parquet"
	cfg.Data.Score = "alpha.parquet"

	store, err := archive.Open(cfg.Data)
	require.NoError(t, err)
	loader := dataset.NewLoader(store, nil)

	var obs []dataset.Observation
	for k := 0; k < periods; k++ {
		for i, tk := range tickers {
			px := 10 * math.Pow(1+tk.drift, float64(k)) * (1 + 0.01*math.Sin(float64(k+i)))
			o := dataset.Observation{
				Period:   int64(periodKey(k)),
				Ticker:   tk.name,
				Price:    px,
				Volume:   1000,
				Industry: tk.industry,
			}
			if quotes {
				o.Bid, o.Ask = px*0.995, px*1.005
			}
			obs = append(obs, o)
		}
	}
	require.NoError(t, loader.SaveObservations(ctx, cfg.Data.Universe, obs))

	keys := make([]int, periods)
	for k := range keys {
		keys[k] = periodKey(k)
	}
	betaRows := make([][]float64, periods)
	alphaRows := make([][]float64, periods)
	for k := range betaRows {
		betaRows[k] = []float64{0.8, 1.2, 1.5, 0.6}
		alphaRows[k] = []float64{0.1 * float64(k%3), 0.2}
	}
	beta, err := panel.FromRows(keys, []string{"AAA", "BBB", "CCC", "DDD"}, betaRows)
	require.NoError(t, err)
	require.NoError(t, loader.SaveTable(ctx, cfg.Data.Beta, beta))
	alpha, err := panel.FromRows(keys, []string{"HiTec", "Manuf"}, alphaRows)
	require.NoError(t, err)
	require.NoError(t, loader.SaveTable(ctx, cfg.Data.Score, alpha))

	rs, err := results.Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })
	reg := metrics.NewRegistry()

	return &fixture{
		cfg:     cfg,
		loader:  loader,
		store:   rs,
		metrics: reg,
		runner:  New(cfg, loader, WithResults(rs), WithMetrics(reg)),
	}
}

func backtestConfig(strategy string) config.BacktestConfig {
	bt := config.Defaults().Backtest
	bt.Strategy = strategy
	bt.Forming = 3
	bt.Holding = 2
	bt.Capital = 10000
	bt.Filter = config.FilterConfig{Name: "long_short", Long: 50, Short: 50}
	bt.Industries = []string{"Manuf", "HiTec"}
	return bt
}

func TestRunner_Momentum(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	report, err := f.runner.Backtest(ctx, backtestConfig(config.StrategyMomentum))
	require.NoError(t, err)

	res := report.Result
	assert.Equal(t, backtest.StrategyMomentum, res.Strategy)
	assert.Equal(t, []string{"AAA", "BBB", "CCC", "DDD"}, res.Columns)
	assert.Equal(t, 2, res.Start)
	assert.Len(t, report.Ledger, periods)
	assert.Greater(t, report.Stats.TotalCost, 0.0)

	run, ledger, err := f.store.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, backtest.StrategyMomentum, run.Strategy)
	assert.Equal(t, 4, run.Instruments)
	assert.Contains(t, run.Params, `"holding":2`)
	assert.Equal(t, report.Ledger, ledger)

	mfs, err := f.metrics.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["statarb_backtests_total"])
	assert.True(t, names["statarb_tranches_opened_total"])
}

func TestRunner_Beta(t *testing.T) {
	f := newFixture(t, false)

	report, err := f.runner.Backtest(context.Background(), backtestConfig(config.StrategyBeta))
	require.NoError(t, err)

	res := report.Result
	assert.Equal(t, 0, res.Start)
	// lowest beta long, highest beta short
	assert.Greater(t, res.Shares.At(0, 3), 0.0)
	assert.Less(t, res.Shares.At(0, 2), 0.0)
}

func TestRunner_Sector(t *testing.T) {
	f := newFixture(t, true)
	bt := backtestConfig(config.StrategySector)
	bt.Pricing = config.PricingBidAsk

	report, err := f.runner.Backtest(context.Background(), bt)
	require.NoError(t, err)

	res := report.Result
	assert.Equal(t, backtest.StrategySector, res.Strategy)
	require.NotEmpty(t, report.Sector)
	for _, d := range report.Sector {
		assert.Zero(t, d.Uncatalogued)
	}
	assert.Greater(t, res.TranchesOpened(), 0)
}

func TestRunner_BidAskWithoutQuotes(t *testing.T) {
	f := newFixture(t, false)
	bt := backtestConfig(config.StrategyMomentum)
	bt.Pricing = config.PricingBidAsk

	_, err := f.runner.Backtest(context.Background(), bt)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestRunner_MissingDataset(t *testing.T) {
	f := newFixture(t, false)
	f.cfg.Data.Universe = "absent.parquet"
	r := New(f.cfg, f.loader)

	_, err := r.Backtest(context.Background(), backtestConfig(config.StrategyMomentum))
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
}

func TestRunner_InvalidConfig(t *testing.T) {
	f := newFixture(t, false)
	bt := backtestConfig(config.StrategyMomentum)
	bt.Holding = 0

	_, err := f.runner.Backtest(context.Background(), bt)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestRunner_Regress(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	n := 30
	keys := make([]int, n)
	frows := make([][]float64, n)
	rrows := make([][]float64, n)
	for k := range keys {
		keys[k] = 199001 + k
		mkt := math.Sin(float64(k)) * 3
		frows[k] = []float64{mkt, 0.1}
		rrows[k] = []float64{0.1 + 0.4 + 1.1*mkt, 0.1 - 0.2 + 0.9*mkt}
	}
	factors, err := panel.FromRows(keys, []string{"Mkt-RF", "RF"}, frows)
	require.NoError(t, err)
	returns, err := panel.FromRows(keys, []string{"HiTec", "Manuf"}, rrows)
	require.NoError(t, err)
	require.NoError(t, f.loader.SaveTable(ctx, "ff5.parquet", factors))
	require.NoError(t, f.loader.SaveTable(ctx, "ind.parquet", returns))

	f.cfg.Regression = config.RegressionConfig{
		Factors: "ff5.parquet", Returns: "ind.parquet", Output: "alpha/ind.parquet",
		RiskFree: "RF", Window: 12, MinObs: 6,
	}
	r := New(f.cfg, f.loader, WithMetrics(f.metrics))

	report, err := r.Regress(ctx, true, backtestConfig(config.StrategySector))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha/ind.parquet", "alpha/ind_beta_Mkt-RF.parquet"}, report.Keys)
	alpha, err := f.loader.LoadTable(ctx, "alpha/ind.parquet")
	require.NoError(t, err)
	assert.Equal(t, keys[11:], alpha.Periods)
	assert.InDelta(t, 0.4, alpha.At(0, 0), 1e-9)
	assert.InDelta(t, -0.2, alpha.At(0, 1), 1e-9)

	require.Len(t, report.Summaries, 2)
	assert.Equal(t, "HiTec", report.Summaries[0].Column)
	require.Len(t, report.Validation, n)
	assert.True(t, math.IsNaN(report.Validation[10]))
	assert.Equal(t, 1.0, report.Validation[11])
}

type recorder struct {
	events []notifier.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Notify(_ context.Context, ev notifier.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestRunner_Notifies(t *testing.T) {
	f := newFixture(t, false)
	rec := &recorder{}
	reg := notifier.NewRegistry()
	require.NoError(t, reg.Register(rec))
	r := New(f.cfg, f.loader, WithNotifier(reg))

	report, err := r.Backtest(context.Background(), backtestConfig(config.StrategyMomentum))
	require.NoError(t, err)
	bad := backtestConfig(config.StrategyMomentum)
	bad.Pricing = config.PricingBidAsk
	_, err = r.Backtest(context.Background(), bad)
	require.Error(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, notifier.EventBacktestCompleted, rec.events[0].Type)
	assert.Equal(t, report.RunID, rec.events[0].RunID)
	require.NotNil(t, rec.events[0].Stats)
	assert.Equal(t, report.Stats.FinalValue, rec.events[0].Stats.FinalValue)
	assert.Equal(t, notifier.EventBacktestFailed, rec.events[1].Type)
	assert.NotEmpty(t, rec.events[1].Error)
	assert.False(t, rec.events[1].OccurredAt.IsZero())
}

func TestCostModel(t *testing.T) {
	assert.Equal(t, cost.Linear{Rate: 0.002}, costModel(config.CostConfig{Model: config.CostLinear, Rate: 0.002}, nil))
	assert.Equal(t, cost.Quadratic{Linear: 0.001, Quadratic: 0.01}, costModel(config.CostConfig{Model: config.CostQuadratic, Linear: 0.001, Quadratic: 0.01}, nil))
	adv := costModel(config.CostConfig{Model: config.CostADV, Min: 0.001, Max: 0.01}, []float64{5})
	assert.Equal(t, cost.ADV{Totals: []float64{5}, Min: 0.001, Max: 0.01}, adv)
}

func TestBetaKey(t *testing.T) {
	assert.Equal(t, "alpha/ind10_beta_SMB.parquet", betaKey("alpha/ind10.parquet", "SMB"))
}
