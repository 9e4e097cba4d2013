// Package perf computes performance metrics for completed simulation runs.
package perf

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// Input carries everything Compute needs from a finished run.
type Input struct {
	InitialCapital float64
	FinalCapital   float64
	Start          time.Time
	End            time.Time
	Trades         []domain.Trade
	EquityCurve    []domain.EquityPoint

	// Predictions scored against realized outcomes; empty when AI was off.
	Predictions []Scored
}

// Compute derives PerformanceMetrics from a run. Every metric stays zero
// when its inputs are insufficient.
func Compute(in Input) domain.PerformanceMetrics {
	var m domain.PerformanceMetrics

	m.TotalReturn = in.FinalCapital - in.InitialCapital
	if in.InitialCapital > 0 {
		m.TotalReturnPct = m.TotalReturn / in.InitialCapital * 100
	}
	m.AnnualReturn = AnnualReturn(in.InitialCapital, in.FinalCapital, in.Start, in.End)

	tradeStats(&m, in.Trades)

	returns := DailyReturns(in.EquityCurve)
	if len(returns) > 0 {
		m.Volatility = Volatility(returns)
		m.SharpeRatio = Sharpe(returns, m.Volatility)
		if m.Volatility > 0 {
			m.RiskAdjustedReturn = m.AnnualReturn / (m.Volatility / 100)
		}
	}
	m.MaxDrawdown = MaxDrawdown(EquityValues(in.EquityCurve))

	if len(in.Predictions) > 0 {
		acc := Summarize(in.Predictions)
		m.AIAccuracy = acc.Mean * 100
		m.AIConfidenceCorrelation = acc.Correlation
		m.AIPredictionCount = acc.Count
	}
	return m
}

// AnnualReturn compounds the run's growth to a yearly rate in percent, using
// years = days / 365.25. Same-day ranges and non-positive capital yield 0.
func AnnualReturn(initial, final float64, start, end time.Time) float64 {
	years := end.Sub(start).Hours() / 24 / 365.25
	if years <= 0 || initial <= 0 || final < 0 {
		return 0
	}
	r := (math.Pow(final/initial, 1/years) - 1) * 100
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// tradeStats tallies closed-trade statistics. P&L is realized at SELL trades.
func tradeStats(m *domain.PerformanceMetrics, trades []domain.Trade) {
	m.TotalTrades = len(trades)

	var (
		closed   int
		wins     = decimal.Zero
		losses   = decimal.Zero
		holdDays int
	)
	for _, t := range trades {
		if t.Side != domain.SideSell {
			continue
		}
		closed++
		holdDays += t.HoldingDays

		pnl := t.RealizedPnL
		switch pnl.Sign() {
		case 1:
			m.WinningTrades++
			wins = wins.Add(pnl)
			if v := pnl.InexactFloat64(); v > m.LargestWin {
				m.LargestWin = v
			}
		case -1:
			m.LosingTrades++
			loss := pnl.Abs()
			losses = losses.Add(loss)
			if v := loss.InexactFloat64(); v > m.LargestLoss {
				m.LargestLoss = v
			}
		}
	}
	if closed == 0 {
		return
	}

	m.WinRate = float64(m.WinningTrades) / float64(closed) * 100
	m.AvgTradeDuration = float64(holdDays) / float64(closed)
	if m.WinningTrades > 0 {
		m.AvgWin = wins.Div(decimal.NewFromInt(int64(m.WinningTrades))).InexactFloat64()
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = losses.Div(decimal.NewFromInt(int64(m.LosingTrades))).InexactFloat64()
	}

	// Without losses the factor is the gross gain rather than infinity.
	if losses.IsZero() {
		m.ProfitFactor = wins.InexactFloat64()
		return
	}
	m.ProfitFactor = wins.Div(losses).InexactFloat64()
}
