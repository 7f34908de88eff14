// Package cost provides transaction cost models. A model maps the absolute
// dollar value traded per instrument to the dollar cost charged for it.
package cost

import (
	"fmt"
	"math"
)

// Model computes per-instrument transaction costs for one period.
type Model interface {
	Name() string
	// Cost returns a slice the length of trade. period is the index on the
	// run's period axis; models that do not depend on time ignore it.
	Cost(period int, trade []float64) []float64
}

// Linear charges a fixed fraction of traded value (0.001 is 10bps).
type Linear struct {
	Rate float64
}

// Zero is a cost-free model.
func Zero() Linear { return Linear{} }

func (m Linear) Name() string { return fmt.Sprintf("linear(%g)", m.Rate) }

func (m Linear) Cost(_ int, trade []float64) []float64 {
	out := make([]float64, len(trade))
	for i, v := range trade {
		out[i] = v * m.Rate
	}
	return out
}

// Quadratic adds a market impact term proportional to the squared trade.
type Quadratic struct {
	Linear    float64
	Quadratic float64
}

func (m Quadratic) Name() string { return fmt.Sprintf("quadratic(%g,%g)", m.Linear, m.Quadratic) }

func (m Quadratic) Cost(_ int, trade []float64) []float64 {
	out := make([]float64, len(trade))
	for i, v := range trade {
		out[i] = v*m.Linear + v*v*m.Quadratic
	}
	return out
}

// ADV scales the rate between Min and Max with the square root of the
// trade's participation in the period's total dollar volume.
type ADV struct {
	Totals []float64 // total dollar volume per period
	Min    float64
	Max    float64
}

func (m ADV) Name() string { return fmt.Sprintf("adv(%g,%g)", m.Min, m.Max) }

// Cost charges the Max rate when the period's total volume is unknown.
func (m ADV) Cost(period int, trade []float64) []float64 {
	total := math.NaN()
	if period >= 0 && period < len(m.Totals) {
		total = m.Totals[period]
	}
	out := make([]float64, len(trade))
	for i, v := range trade {
		if math.IsNaN(total) || total <= 0 {
			out[i] = v * m.Max
			continue
		}
		out[i] = v * (m.Min + (m.Max-m.Min)*math.Sqrt(v/total))
	}
	return out
}
