package builtins

import (
	"context"
	"fmt"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Trend)(nil)

// Trend follows the short/long moving average relationship. It buys when the
// short average is above the long one and price confirms above the short
// average, and sells when the short average falls below the long one.
//
// With AI insights, a confident DOWN prediction vetoes a buy, a very
// confident one forces an exit, and a confident UP prediction raises the
// buy confidence.
type Trend struct {
	aiThreshold float64
}

// NewTrend creates a Trend strategy. aiThreshold is the prediction
// confidence (0-1) at which AI insights start to override the averages.
func NewTrend(aiThreshold float64) *Trend {
	return &Trend{aiThreshold: aiThreshold}
}

// Name returns "trend".
func (s *Trend) Name() string {
	return "trend"
}

// Analyze implements strategy.Strategy.
func (s *Trend) Analyze(_ context.Context, snap domain.DailySnapshot, ai *domain.InsightBundle) (domain.Signal, error) {
	if snap.SMAShort <= 0 || snap.SMALong <= 0 {
		return domain.Hold("moving averages warming up"), nil
	}

	spread := (snap.SMAShort - snap.SMALong) / snap.SMALong * 100
	sig := domain.Hold("no crossover")
	switch {
	case snap.SMAShort > snap.SMALong && snap.Price > snap.SMAShort:
		sig = domain.Signal{
			Action:     domain.ActionBuy,
			Confidence: clampConfidence(50 + spread*10),
			Reason:     fmt.Sprintf("short average %.2f%% above long", spread),
		}
	case snap.SMAShort < snap.SMALong:
		sig = domain.Signal{
			Action:     domain.ActionSell,
			Confidence: clampConfidence(50 - spread*10),
			Reason:     fmt.Sprintf("short average %.2f%% below long", -spread),
		}
	}

	p, ok := aiView(snap, ai)
	if !ok || p.Confidence < s.aiThreshold {
		return sig, nil
	}
	switch {
	case p.Direction == domain.DirectionDown && p.Confidence >= (1+s.aiThreshold)/2:
		return domain.Signal{Action: domain.ActionSell, Confidence: p.Confidence * 100, Reason: "ai predicts decline"}, nil
	case p.Direction == domain.DirectionDown && sig.Action == domain.ActionBuy:
		return domain.Hold("ai vetoed buy"), nil
	case p.Direction == domain.DirectionUp && sig.Action == domain.ActionBuy:
		sig.Confidence = clampConfidence(sig.Confidence + 10)
		sig.Reason += ", ai confirms"
	}
	return sig, nil
}
