// Package factor estimates rolling factor-model regressions and the
// descriptive statistics used to validate sector signals.
package factor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Status reports how an OLS fit ended. Numeric failure is a status, not an
// error: callers record NaN coefficients and move on.
type Status int

const (
	Fitted Status = iota
	InsufficientData
	Singular
)

func (s Status) String() string {
	switch s {
	case Fitted:
		return "fitted"
	case InsufficientData:
		return "insufficient_data"
	case Singular:
		return "singular"
	default:
		return "unknown"
	}
}

// Estimate is the result of regressing y on an intercept plus regressors.
type Estimate struct {
	Status Status
	Obs    int
	Alpha  float64
	Betas  []float64
}

// FitOLS regresses y on x with an intercept. x holds one row per
// observation. Rows with any missing value are dropped; fewer than minObs
// remaining rows, or no more rows than parameters, yields InsufficientData.
func FitOLS(y []float64, x [][]float64, minObs int) Estimate {
	k := 0
	if len(x) > 0 {
		k = len(x[0])
	}
	est := Estimate{Alpha: math.NaN(), Betas: nanSlice(k)}

	var rows []int
	for i := range y {
		if i >= len(x) || !complete(y[i], x[i], k) {
			continue
		}
		rows = append(rows, i)
	}
	est.Obs = len(rows)
	if est.Obs < minObs || est.Obs <= k+1 {
		est.Status = InsufficientData
		return est
	}

	design := mat.NewDense(est.Obs, k+1, nil)
	target := mat.NewVecDense(est.Obs, nil)
	for r, i := range rows {
		design.Set(r, 0, 1)
		for j := 0; j < k; j++ {
			design.Set(r, j+1, x[i][j])
		}
		target.SetVec(r, y[i])
	}

	var qr mat.QR
	qr.Factorize(design)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, target); err != nil {
		est.Status = Singular
		return est
	}
	for j := 0; j <= k; j++ {
		if v := coef.AtVec(j); math.IsNaN(v) || math.IsInf(v, 0) {
			est.Status = Singular
			return est
		}
	}

	est.Status = Fitted
	est.Alpha = coef.AtVec(0)
	for j := 0; j < k; j++ {
		est.Betas[j] = coef.AtVec(j + 1)
	}
	return est
}

func complete(y float64, x []float64, k int) bool {
	if !finite(y) || len(x) != k {
		return false
	}
	for _, v := range x {
		if !finite(v) {
			return false
		}
	}
	return true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
