package factor

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/filter"
	"github.com/newthinker/statarb/internal/panel"
)

// Summary holds descriptive statistics of one excess-return series. The
// moments are population moments: Std divides by n, Skew and ExKurtosis are
// the biased estimators. SkewP and KurtosisP are the two-sided p-values of
// the D'Agostino skewness and Anscombe-Glynn kurtosis tests against a
// normal distribution.
type Summary struct {
	Column     string
	Obs        int
	Mean       float64
	Std        float64
	Skew       float64
	SkewP      float64
	ExKurtosis float64
	KurtosisP  float64
}

// Describe summarizes each column of an excess-return panel, ignoring
// missing observations.
func Describe(excess *panel.Panel) []Summary {
	out := make([]Summary, 0, excess.Width())
	for i, c := range excess.Columns {
		var xs []float64
		for t := 0; t < excess.Len(); t++ {
			if v := excess.At(t, i); panel.Valid(v) {
				xs = append(xs, v)
			}
		}
		out = append(out, describe(c, xs))
	}
	return out
}

func describe(column string, xs []float64) Summary {
	nan := math.NaN()
	s := Summary{Column: column, Obs: len(xs), Mean: nan, Std: nan, Skew: nan, SkewP: nan, ExKurtosis: nan, KurtosisP: nan}
	if len(xs) == 0 {
		return s
	}
	s.Mean, s.Std = stat.PopMeanStdDev(xs, nil)
	if len(xs) < 2 || s.Std == 0 {
		return s
	}
	s.Skew = stat.Moment(3, xs, nil) / math.Pow(s.Std, 3)
	s.ExKurtosis = stat.Moment(4, xs, nil)/math.Pow(s.Std, 4) - 3
	s.SkewP = skewTest(s.Skew, len(xs))
	s.KurtosisP = kurtosisTest(s.ExKurtosis+3, len(xs))
	return s
}

// skewTest returns the two-sided p-value of the D'Agostino test for a
// biased sample skewness b1 over n observations. It needs n ≥ 8. A zero
// skewness is tested as 1, matching scipy.
func skewTest(b1 float64, n int) float64 {
	if n < 8 {
		return math.NaN()
	}
	fn := float64(n)
	y := b1 * math.Sqrt((fn+1)*(fn+3)/(6*(fn-2)))
	beta2 := 3 * (fn*fn + 27*fn - 70) * (fn + 1) * (fn + 3) / ((fn - 2) * (fn + 5) * (fn + 7) * (fn + 9))
	w2 := -1 + math.Sqrt(2*(beta2-1))
	delta := 1 / math.Sqrt(0.5*math.Log(w2))
	alpha := math.Sqrt(2 / (w2 - 1))
	if y == 0 {
		y = 1
	}
	z := delta * math.Asinh(y/alpha)
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}

// kurtosisTest returns the two-sided p-value of the Anscombe-Glynn test for
// a biased Pearson kurtosis b2 over n observations. It needs n ≥ 5.
func kurtosisTest(b2 float64, n int) float64 {
	if n < 5 {
		return math.NaN()
	}
	fn := float64(n)
	mean := 3 * (fn - 1) / (fn + 1)
	variance := 24 * fn * (fn - 2) * (fn - 3) / ((fn + 1) * (fn + 1) * (fn + 3) * (fn + 5))
	x := (b2 - mean) / math.Sqrt(variance)
	sqrtBeta1 := 6 * (fn*fn - 5*fn + 2) / ((fn + 7) * (fn + 9)) * math.Sqrt(6*(fn+3)*(fn+5)/(fn*(fn-2)*(fn-3)))
	a := 6 + 8/sqrtBeta1*(2/sqrtBeta1+math.Sqrt(1+4/(sqrtBeta1*sqrtBeta1)))
	denom := 1 + x*math.Sqrt(2/(a-4))
	if denom == 0 {
		return math.NaN()
	}
	term2 := math.Copysign(math.Cbrt((1-2/a)/math.Abs(denom)), denom)
	z := (1 - 2/(9*a) - term2) / math.Sqrt(2/(9*a))
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}

// ValidateSignal compounds the return of trading a signal: the weights
// chosen from signal row t earn the returns of row t+1, which are quoted in
// percent. The series starts at 1 in the first period with any valid signal
// and is NaN before it.
func ValidateSignal(signal, returns *panel.Panel, f filter.Func) ([]float64, error) {
	aligned := returns.Select(signal.Columns)
	if err := signal.SameAxis(aligned); err != nil {
		return nil, err
	}
	n := signal.Len()
	value := make([]float64, n)
	first := -1
	for t := 0; t < n; t++ {
		value[t] = math.NaN()
		if first < 0 && panel.AnyValid(signal.Row(t)) {
			first = t
		}
	}
	if first < 0 {
		return nil, core.Errorf(core.ErrNoData, "signal has no valid period")
	}

	value[first] = 1
	for t := first; t+1 < n; t++ {
		var ret float64
		for i, w := range f(signal.Row(t)) {
			ret += panel.Clean(panel.Clean(w) * aligned.At(t+1, i))
		}
		value[t+1] = value[t] * (1 + ret/100)
	}
	return value, nil
}
