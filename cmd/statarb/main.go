package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "statarb",
	Short: "statarb - cross-sectional equity strategy backtester",
	Long: `statarb simulates staggered-tranche long/short equity strategies
(momentum, low beta, sector rotation) over monthly panels, fits rolling
factor regressions, and serves backtests as asynchronous HTTP jobs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
