package marketdata

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"

	"strategylab/internal/domain"
)

// Indicator windows used when enriching snapshots.
const (
	ShortWindow    = 20
	LongWindow     = 60
	RSIWindow      = 14
	MomentumWindow = 20
)

// SMA returns the simple moving average of values aligned to the input: the
// i-th output averages the window ending at i, and positions before the
// window is full are zero.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return make([]float64, len(values))
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return align(len(values), helper.ChanToSlice(sma.Compute(helper.SliceToChan(values))))
}

// RSI returns the relative strength index of values aligned to the input,
// zero where it is not yet defined.
func RSI(values []float64, period int) []float64 {
	if period <= 0 || len(values) <= period {
		return make([]float64, len(values))
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return align(len(values), helper.ChanToSlice(rsi.Compute(helper.SliceToChan(values))))
}

// Momentum returns the percent change of each value against the value
// period samples earlier, zero where it is not yet defined.
func Momentum(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := period; i < len(values); i++ {
		if base := values[i-period]; base > 0 {
			out[i] = (values[i] - base) / base * 100
		}
	}
	return out
}

// align right-aligns an indicator output of n or fewer values into a slice
// of length n.
func align(n int, out []float64) []float64 {
	full := make([]float64, n)
	if len(out) > n {
		out = out[len(out)-n:]
	}
	copy(full[n-len(out):], out)
	return full
}

// Enrich turns date-ordered bars of one symbol into snapshots carrying the
// derived indicators. Scores are joined by day key when provided.
func Enrich(bars []domain.Bar, scores map[string]domain.AnalysisScore) []domain.DailySnapshot {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	short := SMA(closes, ShortWindow)
	long := SMA(closes, LongWindow)
	rsi := RSI(closes, RSIWindow)
	mom := Momentum(closes, MomentumWindow)

	out := make([]domain.DailySnapshot, len(bars))
	for i, b := range bars {
		day := domain.Day(b.Timestamp)
		snap := domain.DailySnapshot{
			Symbol:   b.Symbol,
			Date:     day,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Price:    b.Close,
			Volume:   b.Volume,
			SMAShort: short[i],
			SMALong:  long[i],
			RSI:      rsi[i],
			Momentum: mom[i],
		}
		if sc, ok := scores[domain.DayKey(day)]; ok {
			snap.TechnicalScore = sc.TechnicalScore
			snap.SentimentScore = sc.SentimentScore
			snap.FinalScore = sc.FinalScore
		}
		out[i] = snap
	}
	return out
}
