package factor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitOLS_ExactLine(t *testing.T) {
	// y = 0.5 + 2·x1 - 1·x2
	x := [][]float64{{1, 0}, {2, 1}, {3, 1}, {4, 3}, {5, 2}, {6, 5}}
	y := make([]float64, len(x))
	for i, r := range x {
		y[i] = 0.5 + 2*r[0] - r[1]
	}

	est := FitOLS(y, x, 3)

	require.Equal(t, Fitted, est.Status)
	assert.Equal(t, 6, est.Obs)
	assert.InDelta(t, 0.5, est.Alpha, 1e-9)
	assert.InDeltaSlice(t, []float64{2, -1}, est.Betas, 1e-9)
}

func TestFitOLS_DropsMissingRows(t *testing.T) {
	nan := math.NaN()
	x := [][]float64{{1}, {2}, {nan}, {3}, {4}}
	y := []float64{3, 5, 100, nan, 9}

	est := FitOLS(y, x, 3)

	require.Equal(t, Fitted, est.Status)
	assert.Equal(t, 3, est.Obs)
	assert.InDelta(t, 1, est.Alpha, 1e-9)
	assert.InDelta(t, 2, est.Betas[0], 1e-9)
}

func TestFitOLS_Failures(t *testing.T) {
	tests := []struct {
		name   string
		y      []float64
		x      [][]float64
		minObs int
		want   Status
	}{
		{"below min obs", []float64{1, 2, 3, 4}, [][]float64{{1}, {2}, {3}, {4}}, 12, InsufficientData},
		{"no more rows than parameters", []float64{1, 2}, [][]float64{{1}, {2}}, 1, InsufficientData},
		{"zero regressor", []float64{1, 2, 3, 4}, [][]float64{{0}, {0}, {0}, {0}}, 1, Singular},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := FitOLS(tt.y, tt.x, tt.minObs)
			assert.Equal(t, tt.want, est.Status)
			assert.True(t, math.IsNaN(est.Alpha))
			assert.True(t, math.IsNaN(est.Betas[0]))
		})
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "fitted", Fitted.String())
	assert.Equal(t, "singular", Singular.String())
	assert.Equal(t, "unknown", Status(9).String())
}
