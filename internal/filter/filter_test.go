package filter

import (
	"math"
	"testing"

	"github.com/newthinker/statarb/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func sum(w []float64) float64 {
	var s float64
	for _, v := range w {
		if !math.IsNaN(v) {
			s += v
		}
	}
	return s
}

func TestLongShort_Deciles(t *testing.T) {
	score := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := LongShort(90, 10)(score)

	assert.Equal(t, 1.0, got[9])
	assert.Equal(t, -1.0, got[0])
	for i := 1; i < 9; i++ {
		assert.Equal(t, 0.0, got[i], "index %d", i)
	}
}

func TestLongShort_SidesNormalized(t *testing.T) {
	score := []float64{1, 2, 3, 4, nan, 5, 6, 7, 8}
	got := LongShort(70, 30)(score)

	var long, short float64
	for _, w := range got {
		if w > 0 {
			long += w
		} else if w < 0 {
			short += w
		}
	}
	assert.InDelta(t, 1.0, long, 1e-12)
	assert.InDelta(t, -1.0, short, 1e-12)
	assert.True(t, math.IsNaN(got[4]), "missing score stays missing")
}

func TestLongShort_AllMissing(t *testing.T) {
	got := LongShort(90, 10)([]float64{nan, nan})
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
}

func TestRanking_DollarNeutral(t *testing.T) {
	got := Ranking([]float64{3, 1, 2, nan})

	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.InDelta(t, -1.0, got[1], 1e-12)
	assert.InDelta(t, 0.0, got[2], 1e-12)
	assert.True(t, math.IsNaN(got[3]))

	var gross float64
	for _, w := range got[:3] {
		gross += math.Abs(w)
	}
	assert.InDelta(t, 2.0, gross, 1e-12)
	assert.InDelta(t, 0.0, sum(got), 1e-12)
}

func TestRanking_AllTied(t *testing.T) {
	got := Ranking([]float64{4, 4, 4})
	assert.Equal(t, []float64{0, 0, 0}, got)
}

func TestLongRanking(t *testing.T) {
	got := LongRanking([]float64{3, 1, 2})
	assert.InDelta(t, 0.5, got[0], 1e-12)
	assert.InDelta(t, 1.0/6, got[1], 1e-12)
	assert.InDelta(t, 1.0/3, got[2], 1e-12)
	assert.InDelta(t, 1.0, sum(got), 1e-12)
}

func TestRank_AveragesTies(t *testing.T) {
	ranks, n := rank([]float64{5, 5, 1, nan})
	assert.Equal(t, 3, n)
	assert.Equal(t, 2.5, ranks[0])
	assert.Equal(t, 2.5, ranks[1])
	assert.Equal(t, 1.0, ranks[2])
	assert.True(t, math.IsNaN(ranks[3]))
}

func TestEqualWeight(t *testing.T) {
	got := EqualWeight([]float64{0.3, nan, -2, 7})
	assert.InDelta(t, 1.0/3, got[0], 1e-12)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 1.0, sum(got), 1e-12)
}

func TestPercentile_MatchesLinearInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.3, percentile(sorted, 10), 1e-12)
	assert.InDelta(t, 2.5, percentile(sorted, 50), 1e-12)
	assert.InDelta(t, 4.0, percentile(sorted, 100), 1e-12)
	assert.Equal(t, 7.0, percentile([]float64{7}, 90))
}

func TestByName(t *testing.T) {
	for _, name := range []string{NameLongShort, NameRanking, NameLongRanking, NameEqualWeight} {
		f, err := ByName(name, 90, 10)
		require.NoError(t, err, name)
		assert.Len(t, f([]float64{1, 2, 3}), 3)
	}

	_, err := ByName("momentum_magic", 0, 0)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = ByName(NameLongShort, 120, 10)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
