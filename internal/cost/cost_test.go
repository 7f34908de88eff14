package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinear(t *testing.T) {
	got := Linear{Rate: 0.001}.Cost(0, []float64{1000, 0, 250})
	assert.InDeltaSlice(t, []float64{1, 0, 0.25}, got, 1e-12)
}

func TestZero(t *testing.T) {
	got := Zero().Cost(3, []float64{1e6, 5})
	assert.Equal(t, []float64{0, 0}, got)
}

func TestQuadratic(t *testing.T) {
	got := Quadratic{Linear: 0.001, Quadratic: 0.0001}.Cost(0, []float64{100, 10})
	assert.InDeltaSlice(t, []float64{0.1 + 1, 0.01 + 0.01}, got, 1e-12)
}

func TestADV(t *testing.T) {
	m := ADV{Totals: []float64{10000, math.NaN()}, Min: 0.001, Max: 0.01}

	got := m.Cost(0, []float64{100, 0})
	want := 100 * (0.001 + 0.009*math.Sqrt(100.0/10000))
	assert.InDelta(t, want, got[0], 1e-12)
	assert.Equal(t, 0.0, got[1])

	missing := m.Cost(1, []float64{100})
	assert.InDelta(t, 1.0, missing[0], 1e-12, "max rate when volume is unknown")

	outOfRange := m.Cost(7, []float64{100})
	assert.InDelta(t, 1.0, outOfRange[0], 1e-12)
}

func TestModels_NonNegativeAndShapePreserving(t *testing.T) {
	trade := []float64{0, 1, 50, 1e5}
	models := []Model{
		Zero(),
		Linear{Rate: 0.002},
		Quadratic{Linear: 0.001, Quadratic: 1e-6},
		ADV{Totals: []float64{1e7}, Min: 0.0005, Max: 0.005},
	}
	for _, m := range models {
		t.Run(m.Name(), func(t *testing.T) {
			got := m.Cost(0, trade)
			assert.Len(t, got, len(trade))
			for _, c := range got {
				assert.GreaterOrEqual(t, c, 0.0)
			}
		})
	}
}
