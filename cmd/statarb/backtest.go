package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/config"
	"github.com/newthinker/statarb/internal/runner"
)

var (
	btStrategy string
	btPricing  string
	btForming  int
	btHolding  int
	btCapital  float64
	btSmooth   float64
	btCostRate float64
	btJSON     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest and show performance statistics",
	Long: `Run the configured strategy over the universe dataset. Flags override
the backtest section of the config file.`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&btStrategy, "strategy", "", "strategy: momentum, beta or sector")
	f.StringVar(&btPricing, "pricing", "", "pricing: last or bidask")
	f.IntVar(&btForming, "forming", 0, "formation window in periods")
	f.IntVar(&btHolding, "holding", 0, "holding period in periods")
	f.Float64Var(&btCapital, "capital", 0, "capital committed per tranche")
	f.Float64Var(&btSmooth, "smooth", 0, "signal smoothing factor in [0, 1)")
	f.Float64Var(&btCostRate, "cost-rate", 0, "linear transaction cost rate")
	f.BoolVar(&btJSON, "json", false, "print the full report as JSON")

	rootCmd.AddCommand(backtestCmd)
}

// applyBacktestFlags copies the flags the user set onto bt.
func applyBacktestFlags(cmd *cobra.Command, bt *config.BacktestConfig) {
	f := cmd.Flags()
	if f.Changed("strategy") {
		bt.Strategy = btStrategy
	}
	if f.Changed("pricing") {
		bt.Pricing = btPricing
	}
	if f.Changed("forming") {
		bt.Forming = btForming
	}
	if f.Changed("holding") {
		bt.Holding = btHolding
	}
	if f.Changed("capital") {
		bt.Capital = btCapital
	}
	if f.Changed("smooth") {
		bt.Smooth = btSmooth
	}
	if f.Changed("cost-rate") {
		bt.Cost = config.CostConfig{Model: config.CostLinear, Rate: btCostRate}
	}
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withEnvironment(ctx, func(env *environment) error {
		bt := env.cfg.Backtest
		applyBacktestFlags(cmd, &bt)

		report, err := env.runner().Backtest(ctx, bt)
		env.writeTextfile()
		if err != nil {
			return err
		}
		env.log.Info("backtest finished",
			zap.String("run_id", report.RunID),
			zap.Float64("final_value", report.Stats.FinalValue),
		)

		if btJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(report)
		return nil
	})
}

func printReport(r *runner.Report) {
	res := r.Result
	fmt.Println("=== statarb backtest ===")
	fmt.Printf("Run:         %s\n", r.RunID)
	fmt.Printf("Strategy:    %s (forming %d, holding %d, %s pricing)\n",
		res.Strategy, r.Params.Forming, r.Params.Holding, r.Params.Pricing)
	fmt.Printf("Instruments: %d\n", len(res.Columns))
	if res.Start < res.Len() {
		fmt.Printf("Periods:     %d to %d (%d simulated, %d tranches)\n",
			res.Periods[res.Start], res.Periods[res.Len()-1], res.Len()-res.Start, res.TranchesOpened())
	}
	fmt.Println()

	s := r.Stats
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Final value\t%.2f\t\n", s.FinalValue)
	fmt.Fprintf(w, "Total return\t%.2f%%\t\n", s.TotalReturn*100)
	fmt.Fprintf(w, "Annualized return\t%.2f%%\t\n", s.AnnualizedReturn*100)
	fmt.Fprintf(w, "Annualized volatility\t%.2f%%\t\n", s.AnnualizedVolatility*100)
	fmt.Fprintf(w, "Sharpe ratio\t%.2f\t\n", s.SharpeRatio)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\t\n", s.MaxDrawdown*100)
	fmt.Fprintf(w, "Total cost\t%.2f\t\n", s.TotalCost)
	fmt.Fprintf(w, "Turnover\t%.2f\t\n", s.Turnover)
	w.Flush()
}
