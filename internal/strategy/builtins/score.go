package builtins

import (
	"context"
	"fmt"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Score)(nil)

// Score trades on the stored final analysis score.
type Score struct {
	buyAt  float64
	sellAt float64
}

// NewScore creates a Score strategy that buys at or above buyAt and sells at
// or below sellAt (0-100 scale).
func NewScore(buyAt, sellAt float64) *Score {
	return &Score{buyAt: buyAt, sellAt: sellAt}
}

// Name returns "score".
func (s *Score) Name() string {
	return "score"
}

// Analyze implements strategy.Strategy. With an AI prediction the score is
// blended 70/30 with the prediction's directional conviction.
func (s *Score) Analyze(_ context.Context, snap domain.DailySnapshot, ai *domain.InsightBundle) (domain.Signal, error) {
	if snap.FinalScore <= 0 {
		return domain.Hold("no analysis score"), nil
	}

	score := snap.FinalScore
	if p, ok := aiView(snap, ai); ok {
		view := 50.0
		switch p.Direction {
		case domain.DirectionUp:
			view = 50 + p.Confidence*50
		case domain.DirectionDown:
			view = 50 - p.Confidence*50
		}
		score = 0.7*score + 0.3*view
	}

	switch {
	case score >= s.buyAt:
		return domain.Signal{Action: domain.ActionBuy, Confidence: clampConfidence(score), Reason: fmt.Sprintf("score %.1f", score)}, nil
	case score <= s.sellAt:
		return domain.Signal{Action: domain.ActionSell, Confidence: clampConfidence(100 - score), Reason: fmt.Sprintf("score %.1f", score)}, nil
	}
	return domain.Hold(fmt.Sprintf("score %.1f in neutral band", score)), nil
}
