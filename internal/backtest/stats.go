package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// CalculateStats computes performance statistics from a run's value series.
// Period returns are value changes over capital, so the figures describe the
// strategy's return on the committed notional.
func CalculateStats(r *Result, capital float64, periodsPerYear int) Stats {
	if r == nil || r.Start >= r.Len() || !(capital > 0) {
		return Stats{}
	}

	var totalCost, turnover float64
	returns := make([]float64, 0, r.Len()-r.Start)
	prev := 0.0
	for t := r.Start; t < r.Len(); t++ {
		returns = append(returns, (r.Value[t]-prev)/capital)
		prev = r.Value[t]
		totalCost += r.Cost[t]
		turnover += r.Turnover[t]
	}

	s := Stats{
		Periods:     len(returns),
		FinalValue:  r.FinalValue(),
		TotalReturn: r.FinalValue() / capital,
		MaxDrawdown: calculateMaxDrawdown(r.Value[r.Start:], capital),
		TotalCost:   totalCost,
		Turnover:    turnover,
	}
	if len(returns) < 2 || periodsPerYear <= 0 {
		return s
	}

	mean, std := stat.MeanStdDev(returns, nil)
	s.AnnualizedReturn = mean * float64(periodsPerYear)
	s.AnnualizedVolatility = std * math.Sqrt(float64(periodsPerYear))
	if s.AnnualizedVolatility > 0 {
		s.SharpeRatio = s.AnnualizedReturn / s.AnnualizedVolatility
	}
	return s
}

// calculateMaxDrawdown finds the largest peak-to-trough decline of the
// equity curve 1 + value/capital.
func calculateMaxDrawdown(values []float64, capital float64) float64 {
	var maxDD float64
	peak := 1.0
	for _, v := range values {
		equity := 1 + v/capital
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
