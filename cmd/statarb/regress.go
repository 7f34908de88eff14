package main

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/newthinker/statarb/internal/factor"
)

var regressDescribe bool

var regressCmd = &cobra.Command{
	Use:   "regress",
	Short: "Fit rolling factor regressions and write the alpha table",
	Long: `Regress the configured return table on the factor table over a
trailing window and write alpha and one beta table per factor to the
archive. --describe also summarizes excess returns and compounds the alpha
signal through the industry filter.`,
	Args: cobra.NoArgs,
	RunE: runRegress,
}

func init() {
	regressCmd.Flags().BoolVar(&regressDescribe, "describe", false, "summarize excess returns and validate the alpha signal")
	rootCmd.AddCommand(regressCmd)
}

func runRegress(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withEnvironment(ctx, func(env *environment) error {
		report, err := env.runner().Regress(ctx, regressDescribe, env.cfg.Backtest)
		env.writeTextfile()
		if err != nil {
			return err
		}

		st := report.Result.Status
		fmt.Printf("Fits: %d fitted, %d insufficient data, %d singular\n",
			st[factor.Fitted], st[factor.InsufficientData], st[factor.Singular])
		for _, key := range report.Keys {
			fmt.Printf("Wrote %s\n", key)
		}
		if !regressDescribe {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COLUMN\tOBS\tMEAN\tSTD\tSKEW\tSKEW P\tEX KURT\tKURT P\t")
		for _, s := range report.Summaries {
			fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n",
				s.Column, s.Obs, s.Mean, s.Std, s.Skew, s.SkewP, s.ExKurtosis, s.KurtosisP)
		}
		w.Flush()

		if v := report.Validation; len(v) > 0 && !math.IsNaN(v[len(v)-1]) {
			fmt.Printf("\nAlpha signal compounded value: %.4f\n", v[len(v)-1])
		}
		return nil
	})
}
