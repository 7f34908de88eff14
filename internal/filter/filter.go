// Package filter holds the score → weight transforms used to turn a
// cross-section of signals into target allocations. Every filter is a pure
// function: the output has the input's length, and instruments whose score is
// missing come back as NaN.
package filter

import (
	"fmt"
	"math"
	"sort"

	"github.com/newthinker/statarb/internal/core"
)

// Func maps a score row to a weight row of the same length.
type Func func(score []float64) []float64

// Names accepted by ByName.
const (
	NameLongShort   = "long_short"
	NameRanking     = "ranking"
	NameLongRanking = "long_ranking"
	NameEqualWeight = "equal_weight"
)

// ByName resolves a configured filter. long and short are percentiles and
// only apply to long_short.
func ByName(name string, long, short float64) (Func, error) {
	switch name {
	case NameLongShort:
		if long < 0 || long > 100 || short < 0 || short > 100 {
			return nil, core.Errorf(core.ErrConfigInvalid, "long_short percentiles must be in [0, 100], got %v/%v", long, short)
		}
		return LongShort(long, short), nil
	case NameRanking:
		return Ranking, nil
	case NameLongRanking:
		return LongRanking, nil
	case NameEqualWeight:
		return EqualWeight, nil
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown filter %q", name))
	}
}

// LongShort goes long the scores strictly above the long percentile and short
// the scores strictly below the short percentile. Each side sums to ±1; a
// side with no members contributes nothing. LongShort(90, 10) longs the top
// decile and shorts the bottom decile.
func LongShort(long, short float64) Func {
	return func(score []float64) []float64 {
		out := nanLike(score)
		valid := validValues(score)
		if len(valid) == 0 {
			return out
		}
		sort.Float64s(valid)
		longQ := percentile(valid, long)
		shortQ := percentile(valid, short)

		var nLong, nShort int
		for _, s := range score {
			if isNaN(s) {
				continue
			}
			if s > longQ {
				nLong++
			}
			if s < shortQ {
				nShort++
			}
		}
		for i, s := range score {
			if isNaN(s) {
				continue
			}
			w := 0.0
			if s > longQ {
				w += 1 / float64(nLong)
			}
			if s < shortQ {
				w -= 1 / float64(nShort)
			}
			out[i] = w
		}
		return out
	}
}

// Ranking is dollar neutral: ranks are centered on their mean and scaled so
// the gross exposure is 2.
func Ranking(score []float64) []float64 {
	out := nanLike(score)
	ranks, n := rank(score)
	if n == 0 {
		return out
	}
	var sum float64
	for _, r := range ranks {
		if !isNaN(r) {
			sum += r
		}
	}
	mean := sum / float64(n)
	var gross float64
	for _, r := range ranks {
		if !isNaN(r) {
			gross += math.Abs(r - mean)
		}
	}
	for i, r := range ranks {
		if isNaN(r) {
			continue
		}
		if gross == 0 {
			out[i] = 0
			continue
		}
		out[i] = (r - mean) / (gross / 2)
	}
	return out
}

// LongRanking allocates in proportion to rank; weights sum to 1.
func LongRanking(score []float64) []float64 {
	out := nanLike(score)
	ranks, n := rank(score)
	if n == 0 {
		return out
	}
	var sum float64
	for _, r := range ranks {
		if !isNaN(r) {
			sum += r
		}
	}
	for i, r := range ranks {
		if !isNaN(r) {
			out[i] = r / sum
		}
	}
	return out
}

// EqualWeight spreads a unit allocation evenly across valid scores.
func EqualWeight(score []float64) []float64 {
	out := nanLike(score)
	var n int
	for _, s := range score {
		if !isNaN(s) {
			n++
		}
	}
	for i, s := range score {
		if !isNaN(s) {
			out[i] = 1 / float64(n)
		}
	}
	return out
}

// percentile interpolates linearly between closest ranks of sorted, the same
// rule numpy applies by default.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// rank assigns 1-based ranks to valid scores, averaging ties. Missing scores
// keep a NaN rank.
func rank(score []float64) ([]float64, int) {
	ranks := nanLike(score)
	idx := make([]int, 0, len(score))
	for i, s := range score {
		if !isNaN(s) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] < score[idx[b]] })
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && score[idx[end]] == score[idx[start]] {
			end++
		}
		avg := float64(start+end+1) / 2 // mean of ranks start+1 .. end
		for k := start; k < end; k++ {
			ranks[idx[k]] = avg
		}
		start = end
	}
	return ranks, len(idx)
}

func validValues(score []float64) []float64 {
	out := make([]float64, 0, len(score))
	for _, s := range score {
		if !isNaN(s) {
			out = append(out, s)
		}
	}
	return out
}

func nanLike(score []float64) []float64 {
	out := make([]float64, len(score))
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// isNaN treats ±Inf as missing as well.
func isNaN(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
