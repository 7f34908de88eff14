package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the backtest job server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withEnvironment(ctx, func(env *environment) error {
		deps := api.Dependencies{
			Backtester: env.runner(),
			Datasets:   env.loader,
			Metrics:    env.metrics,
			Defaults:   env.cfg.Backtest,
		}
		if env.results != nil {
			deps.Runs = env.results
		}

		server, err := api.NewServer(api.ConfigFrom(env.cfg), deps, env.log)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		env.log.Info("starting statarb server",
			zap.String("host", env.cfg.Server.Host),
			zap.Int("port", env.cfg.Server.Port),
		)

		errc := make(chan error, 1)
		go func() { errc <- server.Start(ctx) }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
