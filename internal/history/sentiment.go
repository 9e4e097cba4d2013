package history

import (
	"context"
	"sort"
	"strings"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/stats"
)

// Sentiment bands: scores above positiveSentiment or below negativeSentiment
// are directional, and next-day moves beyond impactBand percent count as an
// impact. impactScale is the percent move that saturates the impact.
const (
	positiveSentiment = 55.0
	negativeSentiment = 45.0
	impactBand        = 1.0
	impactScale       = 10.0
)

// SymbolSentiment is the sentiment/price agreement for one symbol.
type SymbolSentiment struct {
	Symbol      string
	Correlation float64 // mean signed agreement in [-1, 1]
	Accuracy    float64 // percent of matching directions
	Samples     int
}

// SentimentReport compares stored sentiment scores with the following
// trading day's price move.
type SentimentReport struct {
	Start, End  time.Time
	Correlation float64 // mean of per-symbol correlations
	Accuracy    float64 // mean of per-symbol accuracies
	Samples     int
	BySymbol    []SymbolSentiment // sorted by symbol
}

// AnalyzeSentimentImpact measures how well each day's sentiment score
// anticipated the next close of the same symbol.
func (a *Analyzer) AnalyzeSentimentImpact(ctx context.Context, start, end time.Time, symbols []string) (*SentimentReport, error) {
	start, end = domain.Day(start), domain.Day(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	report := &SentimentReport{Start: start, End: end}
	c := a.newCloses()
	days := a.calendar.TradingDays(start, end)

	for _, raw := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			continue
		}
		var corr, acc []float64
		for _, day := range days {
			snap, err := a.source.Snapshot(ctx, sym, day)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			if snap == nil || snap.SentimentScore <= 0 {
				continue
			}
			o, ok, err := c.outcome(ctx, sym, day)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			impact := o.Change * 100
			corr = append(corr, sentimentAgreement(snap.SentimentScore, impact))
			acc = append(acc, sentimentHit(snap.SentimentScore, impact))
		}
		if len(corr) == 0 {
			continue
		}
		report.BySymbol = append(report.BySymbol, SymbolSentiment{
			Symbol:      sym,
			Correlation: stats.Mean(corr),
			Accuracy:    stats.Mean(acc),
			Samples:     len(corr),
		})
		report.Samples += len(corr)
	}

	if len(report.BySymbol) == 0 {
		return report, nil
	}
	sort.Slice(report.BySymbol, func(i, j int) bool { return report.BySymbol[i].Symbol < report.BySymbol[j].Symbol })
	corr := make([]float64, len(report.BySymbol))
	acc := make([]float64, len(report.BySymbol))
	for i, s := range report.BySymbol {
		corr[i] = s.Correlation
		acc[i] = s.Accuracy
	}
	report.Correlation = stats.Mean(corr)
	report.Accuracy = stats.Mean(acc)

	a.log.Info("sentiment impact analysed", "symbols", len(report.BySymbol), "samples", report.Samples,
		"correlation", report.Correlation)
	return report, nil
}

// sentimentAgreement scores a 0-100 sentiment against a percent move:
// positive when both point the same way, scaled by their strengths.
func sentimentAgreement(sentiment, impactPct float64) float64 {
	s := (sentiment - 50) / 50
	return s * stats.Clamp(impactPct/impactScale, -1, 1)
}

// sentimentHit returns 100 when the banded sentiment direction matches the
// banded price direction, else 0.
func sentimentHit(sentiment, impactPct float64) float64 {
	if sentimentBand(sentiment) == impactDirection(impactPct) {
		return 100
	}
	return 0
}

func sentimentBand(score float64) domain.Direction {
	switch {
	case score > positiveSentiment:
		return domain.DirectionUp
	case score < negativeSentiment:
		return domain.DirectionDown
	}
	return domain.DirectionNeutral
}

func impactDirection(pct float64) domain.Direction {
	switch {
	case pct > impactBand:
		return domain.DirectionUp
	case pct < -impactBand:
		return domain.DirectionDown
	}
	return domain.DirectionNeutral
}
