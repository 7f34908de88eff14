package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded backtest runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withEnvironment(ctx, func(env *environment) error {
		if env.results == nil {
			return fmt.Errorf("results.sqlite_path is not configured")
		}
		runs, err := env.results.ListRuns(ctx, runsLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTRATEGY\tCREATED\tINSTRUMENTS\tRETURN\tSHARPE\tCOST\t")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f%%\t%.2f\t%.2f\t\n",
				r.ID, r.Strategy, r.CreatedAt.Format("2006-01-02 15:04"), r.Instruments,
				r.Stats.TotalReturn*100, r.Stats.SharpeRatio, r.Stats.TotalCost)
		}
		return w.Flush()
	})
}
