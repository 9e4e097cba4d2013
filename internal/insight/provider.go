// Package insight defines the AI insight producer contract and the
// decorators that make a producer safe to call from the simulation loop.
package insight

import (
	"context"
	"math"
	"strings"
	"time"

	"strategylab/internal/domain"
)

// Provider returns the insight bundle for one trading day. Implementations
// must be safe for concurrent use.
type Provider interface {
	Insights(ctx context.Context, date time.Time, snapshots []domain.DailySnapshot) (*domain.InsightBundle, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, date time.Time, snapshots []domain.DailySnapshot) (*domain.InsightBundle, error)

// Insights implements Provider.
func (f ProviderFunc) Insights(ctx context.Context, date time.Time, snapshots []domain.DailySnapshot) (*domain.InsightBundle, error) {
	return f(ctx, date, snapshots)
}

// Regime band around the long moving average.
const (
	bullBand = 1.02
	bearBand = 0.98
)

// ScoreProvider derives deterministic insights from the scores and
// indicators carried by each snapshot. It stands in for a generative model
// when none is configured and makes AI-on runs reproducible.
type ScoreProvider struct {
	// NeutralBand is the absolute signal below which the direction is NEUTRAL.
	NeutralBand float64
	// MaxExpectedReturn scales the signal into an expected next-day return.
	MaxExpectedReturn float64
}

// NewScoreProvider creates a ScoreProvider with a 0.1 neutral band and a 2%
// maximum expected return.
func NewScoreProvider() *ScoreProvider {
	return &ScoreProvider{NeutralBand: 0.1, MaxExpectedReturn: 0.02}
}

// Insights implements Provider.
func (p *ScoreProvider) Insights(ctx context.Context, date time.Time, snapshots []domain.DailySnapshot) (*domain.InsightBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := &domain.InsightBundle{
		Date:        domain.Day(date),
		Predictions: make(map[string]domain.Prediction, len(snapshots)),
	}

	for _, s := range snapshots {
		sig := p.signal(s)
		dir := domain.DirectionNeutral
		switch {
		case sig > p.NeutralBand:
			dir = domain.DirectionUp
		case sig < -p.NeutralBand:
			dir = domain.DirectionDown
		}
		expected := sig * p.MaxExpectedReturn
		sym := strings.ToUpper(s.Symbol)
		b.Predictions[sym] = domain.Prediction{
			Symbol:         sym,
			Date:           b.Date,
			Direction:      dir,
			Confidence:     math.Min(1, 0.5+math.Abs(sig)/2),
			ExpectedReturn: &expected,
		}
	}

	b.Regime, b.RegimeConfidence = classify(snapshots)
	return b, nil
}

// signal folds the snapshot's evidence into [-1, 1].
func (p *ScoreProvider) signal(s domain.DailySnapshot) float64 {
	var parts []float64
	if s.FinalScore > 0 {
		parts = append(parts, (s.FinalScore-50)/50)
	}
	if s.SentimentScore > 0 {
		parts = append(parts, (s.SentimentScore-50)/50)
	}
	if s.SMAShort > 0 && s.SMALong > 0 {
		parts = append(parts, clamp((s.SMAShort-s.SMALong)/s.SMALong*10))
	}
	if s.RSI > 0 {
		// Overbought readings argue for a pullback.
		parts = append(parts, clamp((50-s.RSI)/50))
	}
	if s.Momentum != 0 {
		parts = append(parts, clamp(s.Momentum/10))
	}
	if len(parts) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range parts {
		sum += v
	}
	return clamp(sum / float64(len(parts)))
}

// classify labels the day by majority vote of the snapshots' moving averages.
func classify(snapshots []domain.DailySnapshot) (domain.Regime, float64) {
	var bull, bear, side int
	for _, s := range snapshots {
		if s.SMAShort <= 0 || s.SMALong <= 0 {
			continue
		}
		switch {
		case s.SMAShort > s.SMALong*bullBand:
			bull++
		case s.SMAShort < s.SMALong*bearBand:
			bear++
		default:
			side++
		}
	}
	total := bull + bear + side
	if total == 0 {
		return domain.RegimeSideways, 0
	}
	switch {
	case bull > bear && bull > side:
		return domain.RegimeBull, float64(bull) / float64(total)
	case bear > bull && bear > side:
		return domain.RegimeBear, float64(bear) / float64(total)
	default:
		return domain.RegimeSideways, float64(side) / float64(total)
	}
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
