package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/config"
	"github.com/newthinker/statarb/internal/dataset"
	"github.com/newthinker/statarb/internal/logger"
	"github.com/newthinker/statarb/internal/metrics"
	"github.com/newthinker/statarb/internal/notifier"
	"github.com/newthinker/statarb/internal/notifier/webhook"
	"github.com/newthinker/statarb/internal/runner"
	"github.com/newthinker/statarb/internal/storage/archive"
	"github.com/newthinker/statarb/internal/storage/results"
)

// environment holds the components every subcommand builds from config.
type environment struct {
	cfg      *config.Config
	log      *zap.Logger
	loader   *dataset.Loader
	results  *results.Store
	metrics  *metrics.Registry
	notifier *notifier.Registry
}

// loadConfig reads --config, or falls back to defaults.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// withEnvironment handles common setup and teardown. The results store is
// opened only when a path is configured.
func withEnvironment(ctx context.Context, fn func(env *environment) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{
		Development: debug || cfg.Log.Development,
		Level:       logLevel(cfg),
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	store, err := archive.Open(cfg.Data)
	if err != nil {
		return fmt.Errorf("opening data archive: %w", err)
	}

	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return err
	}

	env := &environment{
		cfg:      cfg,
		log:      log,
		loader:   dataset.NewLoader(store, log),
		metrics:  metrics.NewRegistry(),
		notifier: notifiers,
	}
	if cfg.Results.SQLitePath != "" {
		env.results, err = results.Open(ctx, cfg.Results.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening results store: %w", err)
		}
		defer env.results.Close()
	}

	return fn(env)
}

func buildNotifiers(cfg config.NotifyConfig) (*notifier.Registry, error) {
	reg := notifier.NewRegistry()
	for _, wc := range cfg.Webhooks {
		name := wc.Name
		if name == "" {
			name = wc.URL
		}
		hook, err := webhook.New(name, wc.URL, wc.Headers)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(hook); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func logLevel(cfg *config.Config) string {
	if debug {
		return "debug"
	}
	return cfg.Log.Level
}

func (env *environment) runner() *runner.Runner {
	opts := []runner.Option{
		runner.WithLogger(env.log),
		runner.WithMetrics(env.metrics),
	}
	if env.results != nil {
		opts = append(opts, runner.WithResults(env.results))
	}
	if env.notifier.Len() > 0 {
		opts = append(opts, runner.WithNotifier(env.notifier))
	}
	return runner.New(env.cfg, env.loader, opts...)
}

// writeTextfile exports the registry for the node exporter textfile
// collector when a path is configured.
func (env *environment) writeTextfile() {
	path := env.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := env.metrics.WriteTextfile(path); err != nil {
		env.log.Warn("writing metrics textfile", zap.String("path", path), zap.Error(err))
	}
}
