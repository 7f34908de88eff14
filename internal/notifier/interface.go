// Package notifier delivers run events to external endpoints.
package notifier

import (
	"context"
	"time"

	"github.com/newthinker/statarb/internal/backtest"
)

// Event types.
const (
	EventBacktestCompleted   = "backtest.completed"
	EventBacktestFailed      = "backtest.failed"
	EventRegressionCompleted = "regression.completed"
)

// Event describes a finished job.
type Event struct {
	Type       string          `json:"type"`
	RunID      string          `json:"run_id,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Stats      *backtest.Stats `json:"stats,omitempty"`
	Tables     []string        `json:"tables,omitempty"`
	Error      string          `json:"error,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier defines the interface for event delivery
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Notify delivers a single event
	Notify(ctx context.Context, ev Event) error
}
