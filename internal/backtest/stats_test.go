package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateStats_Empty(t *testing.T) {
	assert.Equal(t, Stats{}, CalculateStats(nil, 100, 12))
	assert.Equal(t, Stats{}, CalculateStats(&Result{Periods: []int{1}, Start: 1}, 100, 12))
}

func TestCalculateStats(t *testing.T) {
	res := &Result{
		Periods:  []int{1, 2, 3, 4, 5},
		Start:    1,
		Value:    []float64{math.NaN(), 0, 10, 5, 20},
		Cost:     []float64{0, 1, 0.5, 0.5, 0},
		Turnover: []float64{0, 100, 50, 50, 0},
	}

	s := CalculateStats(res, 100, 12)

	returns := []float64{0, 0.1, -0.05, 0.15}
	mean := 0.05
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / 3)

	assert.Equal(t, 4, s.Periods)
	assert.InDelta(t, 20, s.FinalValue, 1e-12)
	assert.InDelta(t, 0.2, s.TotalReturn, 1e-12)
	assert.InDelta(t, mean*12, s.AnnualizedReturn, 1e-12)
	assert.InDelta(t, std*math.Sqrt(12), s.AnnualizedVolatility, 1e-12)
	assert.InDelta(t, (mean*12)/(std*math.Sqrt(12)), s.SharpeRatio, 1e-9)
	assert.InDelta(t, 0.05/1.1, s.MaxDrawdown, 1e-12)
	assert.InDelta(t, 2, s.TotalCost, 1e-12)
	assert.InDelta(t, 200, s.Turnover, 1e-12)
}

func TestCalculateMaxDrawdown(t *testing.T) {
	// equity 1, 1.5, 0.75, 1.2: trough is half the peak
	dd := calculateMaxDrawdown([]float64{0, 50, -25, 20}, 100)
	assert.InDelta(t, 0.5, dd, 1e-12)

	assert.Zero(t, calculateMaxDrawdown([]float64{0, 1, 2, 3}, 100))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Forming: 1, Holding: 1, Capital: 1}.Validate())
	assert.Error(t, Config{Forming: 0, Holding: 1, Capital: 1}.Validate())
	assert.Error(t, Config{Forming: 1, Holding: 1, Capital: math.NaN()}.Validate())
	assert.Error(t, Config{Forming: 1, Holding: 1, Capital: 1, Smooth: -0.1}.Validate())
}
