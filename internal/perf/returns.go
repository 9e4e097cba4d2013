package perf

import (
	"math"

	"strategylab/internal/domain"
	"strategylab/internal/stats"
)

// TradingDaysPerYear is the annualization convention for daily series.
const TradingDaysPerYear = 252

// EquityValues returns the total value of each point on the curve.
func EquityValues(curve []domain.EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.Total.InexactFloat64()
	}
	return out
}

// DailyReturns derives fractional returns from consecutive equity points.
// Pairs whose earlier value is not positive are skipped.
func DailyReturns(curve []domain.EquityPoint) []float64 {
	return SeriesReturns(EquityValues(curve))
}

// SeriesReturns derives fractional returns from consecutive values.
func SeriesReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev <= 0 {
			continue
		}
		out = append(out, (values[i]-prev)/prev)
	}
	return out
}

// Volatility annualizes the population standard deviation of daily returns
// and reports it in percent.
func Volatility(returns []float64) float64 {
	return stats.PopStdDev(returns) * math.Sqrt(TradingDaysPerYear) * 100
}

// Sharpe returns the annualized mean return over the annualized volatility
// (given in percent). Zero volatility yields 0.
func Sharpe(returns []float64, volatilityPct float64) float64 {
	if len(returns) == 0 || volatilityPct <= 0 {
		return 0
	}
	return stats.Mean(returns) * TradingDaysPerYear / (volatilityPct / 100)
}

// MaxDrawdown runs a peak tracker over values, seeded with the first value,
// and returns the deepest decline in percent within [0, 100].
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	peak := values[0]
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
			continue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > worst {
			worst = dd
		}
	}
	return stats.Clamp(worst*100, 0, 100)
}
