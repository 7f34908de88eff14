package factor

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/panel"
)

// Defaults for the rolling regression.
const (
	DefaultWindow = 36
	DefaultMinObs = 12
)

// Rolling fits each return column on the factor columns over a trailing
// window ending at, and including, each period.
type Rolling struct {
	Window int
	MinObs int
	Logger *zap.Logger
}

// Result holds the rolling coefficients. Every panel shares the joined
// period axis and the return columns; periods without a full window or a
// successful fit are NaN.
type Result struct {
	Factors []string
	Alpha   *panel.Panel
	Betas   map[string]*panel.Panel
	Status  map[Status]int
}

// Beta returns the coefficient panel of factor name.
func (r *Result) Beta(name string) (*panel.Panel, bool) {
	p, ok := r.Betas[name]
	return p, ok
}

// Regress joins factors and returns on period key, converts returns to
// excess returns over the riskFree column of factors, and regresses them on
// every other factor column.
func (r Rolling) Regress(ctx context.Context, factors, returns *panel.Panel, riskFree string) (*Result, error) {
	window, minObs := r.Window, r.MinObs
	if window <= 0 {
		window = DefaultWindow
	}
	if minObs <= 0 {
		minObs = DefaultMinObs
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rfIdx, ok := factors.ColumnIndex(riskFree)
	if !ok {
		return nil, core.Errorf(core.ErrConfigInvalid, "risk-free column %q not among factors", riskFree)
	}
	var names []string
	var cols []int
	for i, c := range factors.Columns {
		if i != rfIdx {
			names = append(names, c)
			cols = append(cols, i)
		}
	}
	if len(names) == 0 {
		return nil, core.Errorf(core.ErrConfigInvalid, "no factor columns besides %q", riskFree)
	}

	keys := joinPeriods(factors.Periods, returns.Periods)
	if len(keys) == 0 {
		return nil, core.Errorf(core.ErrNoData, "factor and return periods do not overlap")
	}
	fx := factors.AlignPeriods(keys)
	rx := returns.AlignPeriods(keys)

	res := &Result{
		Factors: names,
		Alpha:   panel.New(keys, returns.Columns),
		Betas:   make(map[string]*panel.Panel, len(names)),
		Status:  make(map[Status]int),
	}
	for _, name := range names {
		res.Betas[name] = panel.New(keys, returns.Columns)
	}

	x := make([][]float64, len(keys))
	for t := range keys {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = fx.At(t, c)
		}
		x[t] = row
	}

	y := make([]float64, window)
	for e := window - 1; e < len(keys); e++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		lo := e - window + 1
		for i := range returns.Columns {
			for t := lo; t <= e; t++ {
				y[t-lo] = rx.At(t, i) - fx.At(t, rfIdx)
			}
			est := FitOLS(y, x[lo:e+1], minObs)
			res.Status[est.Status]++
			if est.Status != Fitted {
				continue
			}
			res.Alpha.Set(e, i, est.Alpha)
			for j, name := range names {
				res.Betas[name].Set(e, i, est.Betas[j])
			}
		}
	}

	logger.Info("rolling regression finished",
		zap.Int("periods", len(keys)),
		zap.Int("columns", returns.Width()),
		zap.Int("window", window),
		zap.Int("fitted", res.Status[Fitted]),
		zap.Int("insufficient", res.Status[InsufficientData]),
		zap.Int("singular", res.Status[Singular]),
	)
	return res, nil
}

// joinPeriods returns the keys present in both sorted axes.
func joinPeriods(a, b []int) []int {
	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// ExcessReturns subtracts the riskFree column of factors from returns on the
// joined period axis.
func ExcessReturns(factors, returns *panel.Panel, riskFree string) (*panel.Panel, error) {
	rfIdx, ok := factors.ColumnIndex(riskFree)
	if !ok {
		return nil, core.Errorf(core.ErrConfigInvalid, "risk-free column %q not among factors", riskFree)
	}
	keys := joinPeriods(factors.Periods, returns.Periods)
	fx := factors.AlignPeriods(keys)
	out := returns.AlignPeriods(keys)
	for t := range keys {
		rf := fx.At(t, rfIdx)
		for i := range out.Columns {
			v := out.At(t, i) - rf
			if math.IsInf(v, 0) {
				v = math.NaN()
			}
			out.Set(t, i, v)
		}
	}
	return out, nil
}
