package backtest

import (
	"github.com/newthinker/statarb/internal/filter"
	"github.com/newthinker/statarb/internal/panel"
)

// Weighting turns the signal available at period t into an unscaled target
// weight row. ok is false when no instrument carries a usable signal, in
// which case no tranche opens. Weights is called once per period from the
// start period onwards, in increasing order.
type Weighting interface {
	Axis() (periods []int, columns []string)
	Weights(t int) (weights []float64, ok bool)
}

// FlatWeighting applies a single filter to a score panel, optionally
// smoothing each score with the one used a holding period earlier.
type FlatWeighting struct {
	score    *panel.Panel
	filter   filter.Func
	smooth   float64
	holding  int
	from     int
	smoothed [][]float64
}

// NewFlatWeighting uses cfg.Smooth, cfg.Holding and cfg.Forming to set up
// the recurrence s[t] = (1-a)·raw[t] + a·s[t-holding], which takes effect
// from period forming+holding. Where either term is missing s[t] is raw[t].
func NewFlatWeighting(score *panel.Panel, f filter.Func, cfg Config) *FlatWeighting {
	return &FlatWeighting{
		score:    score,
		filter:   f,
		smooth:   cfg.Smooth,
		holding:  cfg.Holding,
		from:     cfg.Forming + cfg.Holding,
		smoothed: make([][]float64, score.Len()),
	}
}

func (w *FlatWeighting) Axis() ([]int, []string) { return w.score.Periods, w.score.Columns }

func (w *FlatWeighting) Weights(t int) ([]float64, bool) {
	s := w.signal(t)
	if !panel.AnyValid(s) {
		return nil, false
	}
	return w.filter(s), true
}

func (w *FlatWeighting) signal(t int) []float64 {
	raw := w.score.Row(t)
	s := append([]float64(nil), raw...)
	if w.smooth > 0 && t >= w.from {
		if prev := w.smoothed[t-w.holding]; prev != nil {
			for i := range s {
				// a missing earlier score restarts the chain from raw
				if panel.Valid(raw[i]) && panel.Valid(prev[i]) {
					s[i] = (1-w.smooth)*raw[i] + w.smooth*prev[i]
				}
			}
		}
	}
	w.smoothed[t] = s
	return s
}
