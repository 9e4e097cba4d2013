package builtins

import (
	"context"
	"fmt"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSI)(nil)

// RSI is a mean-reversion strategy on the relative strength index: buy when
// oversold, sell when overbought. A DOWN prediction blocks oversold buys.
type RSI struct {
	period     int
	oversold   float64
	overbought float64
}

// NewRSI creates an RSI strategy. period documents the RSI window the data
// source computes; the strategy reads the snapshot's RSI field.
func NewRSI(period int, oversold, overbought float64) *RSI {
	return &RSI{period: period, oversold: oversold, overbought: overbought}
}

// Name returns "rsi".
func (s *RSI) Name() string {
	return "rsi"
}

// Analyze implements strategy.Strategy.
func (s *RSI) Analyze(_ context.Context, snap domain.DailySnapshot, ai *domain.InsightBundle) (domain.Signal, error) {
	if snap.RSI <= 0 {
		return domain.Hold(fmt.Sprintf("rsi(%d) not available", s.period)), nil
	}
	switch {
	case snap.RSI <= s.oversold:
		if p, ok := aiView(snap, ai); ok && p.Direction == domain.DirectionDown {
			return domain.Hold("oversold but ai predicts decline"), nil
		}
		return domain.Signal{
			Action:     domain.ActionBuy,
			Confidence: clampConfidence(50 + (s.oversold-snap.RSI)*2),
			Reason:     fmt.Sprintf("rsi %.1f oversold", snap.RSI),
		}, nil
	case snap.RSI >= s.overbought:
		return domain.Signal{
			Action:     domain.ActionSell,
			Confidence: clampConfidence(50 + (snap.RSI-s.overbought)*2),
			Reason:     fmt.Sprintf("rsi %.1f overbought", snap.RSI),
		}, nil
	}
	return domain.Hold("rsi neutral"), nil
}
