// Package builtins provides the strategy implementations that ship with
// strategylab.
package builtins

import (
	"math"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Register adds every built-in strategy with its default parameters.
func Register(r *strategy.Registry) {
	r.Register(NewTrend(0.6))
	r.Register(NewScore(65, 40))
	r.Register(NewRSI(14, 30, 70))
}

// aiView returns the prediction for snap's symbol when one exists.
func aiView(snap domain.DailySnapshot, ai *domain.InsightBundle) (domain.Prediction, bool) {
	return ai.For(snap.Symbol)
}

func clampConfidence(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
