package dataset

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/panel"
	"github.com/newthinker/statarb/internal/storage/archive"
)

// Loader reads and writes dataset tables through an archive store.
type Loader struct {
	store  archive.Storage
	logger *zap.Logger
}

// NewLoader wraps store. A nil logger disables logging.
func NewLoader(store archive.Storage, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, logger: logger}
}

// LoadUniverse reads an observation table and pivots it.
func (l *Loader) LoadUniverse(ctx context.Context, key string) (*Universe, error) {
	obs, err := read[Observation](ctx, l.store, key)
	if err != nil {
		return nil, err
	}
	u, err := Pivot(obs)
	if err != nil {
		return nil, fmt.Errorf("universe %s: %w", key, err)
	}
	l.logger.Info("universe loaded",
		zap.String("key", key),
		zap.Int("observations", len(obs)),
		zap.Int("periods", u.Price.Len()),
		zap.Int("tickers", u.Price.Width()),
	)
	return u, nil
}

// LoadTable reads a long-format cell table as a panel.
func (l *Loader) LoadTable(ctx context.Context, key string) (*panel.Panel, error) {
	cells, err := read[Cell](ctx, l.store, key)
	if err != nil {
		return nil, err
	}
	p, err := PivotCells(cells)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", key, err)
	}
	l.logger.Debug("table loaded",
		zap.String("key", key),
		zap.Int("periods", p.Len()),
		zap.Int("columns", p.Width()),
	)
	return p, nil
}

// SaveTable writes p in long format.
func (l *Loader) SaveTable(ctx context.Context, key string, p *panel.Panel) error {
	return write(ctx, l.store, key, Flatten(p))
}

// SaveObservations writes a universe table.
func (l *Loader) SaveObservations(ctx context.Context, key string, obs []Observation) error {
	return write(ctx, l.store, key, obs)
}

// List returns the dataset keys under prefix.
func (l *Loader) List(ctx context.Context, prefix string) ([]string, error) {
	return l.store.List(ctx, prefix)
}

func read[T any](ctx context.Context, store archive.Storage, key string) ([]T, error) {
	data, err := store.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	rows, err := Decode[T](data)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return rows, nil
}

func write[T any](ctx context.Context, store archive.Storage, key string, rows []T) error {
	data, err := Encode(rows)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := store.Write(ctx, key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
