package history

import (
	"context"
	"sort"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/perf"
	"strategylab/internal/stats"
)

// Thresholds on a prediction's [0, 1] accuracy.
const (
	HitThreshold       = 0.6
	directionThreshold = 0.5
	magnitudeThreshold = 0.7
	highConfidence     = 0.7
)

// Prediction type labels used in AccuracyReport.ByType.
const (
	TypeDirectional    = "directional"
	TypeMagnitude      = "magnitude"
	TypeHighConfidence = "confidence_high"
	TypeLowConfidence  = "confidence_low"
)

// SymbolAccuracy is the accuracy of one symbol's predictions.
type SymbolAccuracy struct {
	Symbol   string
	Accuracy float64 // mean, percent
	Hits     int
	Count    int
}

// TypeAccuracy is the share of predictions of one type judged correct.
type TypeAccuracy struct {
	Accuracy float64 // percent
	Count    int
}

// AccuracyReport summarises how stored predictions fared against the
// following trading day.
type AccuracyReport struct {
	Start, End  time.Time
	Predictions int // stored predictions in range
	Scored      int // predictions with a realized outcome

	Accuracy              float64 // mean, percent
	Hits                  int     // accuracy above HitThreshold
	HitRate               float64 // percent
	ConfidenceCorrelation float64

	BySymbol []SymbolAccuracy // sorted by symbol
	ByType   map[string]TypeAccuracy
}

// AnalyzePredictionAccuracy scores every stored prediction in [start, end]
// that has a realized outcome. The confidence correlation needs at least
// perf.MinCorrelationSamples scored predictions.
func (a *Analyzer) AnalyzePredictionAccuracy(ctx context.Context, start, end time.Time, symbols []string) (*AccuracyReport, error) {
	start, end = domain.Day(start), domain.Day(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	report := &AccuracyReport{Start: start, End: end, ByType: make(map[string]TypeAccuracy)}
	scored, total, err := a.scoredPredictions(ctx, start, end, symbols)
	if err != nil {
		return nil, err
	}
	report.Predictions = total
	report.Scored = len(scored)
	if len(scored) == 0 {
		return report, nil
	}

	all := make([]perf.Scored, len(scored))
	bySymbol := make(map[string][]float64)
	type tally struct{ correct, total int }
	types := map[string]*tally{
		TypeDirectional:    {},
		TypeMagnitude:      {},
		TypeHighConfidence: {},
		TypeLowConfidence:  {},
	}
	for i, s := range scored {
		all[i] = perf.Scored{Symbol: s.Symbol, Confidence: s.Confidence, Accuracy: s.accuracy}
		bySymbol[s.Symbol] = append(bySymbol[s.Symbol], s.accuracy)
		hit := s.accuracy > HitThreshold
		if hit {
			report.Hits++
		}

		types[TypeDirectional].total++
		if s.accuracy > directionThreshold {
			types[TypeDirectional].correct++
		}
		types[TypeMagnitude].total++
		if s.accuracy > magnitudeThreshold {
			types[TypeMagnitude].correct++
		}
		conf := types[TypeLowConfidence]
		if s.Confidence > highConfidence {
			conf = types[TypeHighConfidence]
		}
		conf.total++
		if hit {
			conf.correct++
		}
	}

	summary := perf.Summarize(all)
	report.Accuracy = summary.Mean * 100
	report.ConfidenceCorrelation = summary.Correlation
	report.HitRate = float64(report.Hits) / float64(len(scored)) * 100

	for sym, acc := range bySymbol {
		sa := SymbolAccuracy{Symbol: sym, Accuracy: stats.Mean(acc) * 100, Count: len(acc)}
		for _, v := range acc {
			if v > HitThreshold {
				sa.Hits++
			}
		}
		report.BySymbol = append(report.BySymbol, sa)
	}
	sort.Slice(report.BySymbol, func(i, j int) bool { return report.BySymbol[i].Symbol < report.BySymbol[j].Symbol })

	for name, t := range types {
		ta := TypeAccuracy{Count: t.total}
		if t.total > 0 {
			ta.Accuracy = float64(t.correct) / float64(t.total) * 100
		}
		report.ByType[name] = ta
	}

	a.log.Info("prediction accuracy analysed",
		"predictions", report.Predictions,
		"scored", report.Scored,
		"accuracy", report.Accuracy,
		"correlation", report.ConfidenceCorrelation,
	)
	return report, nil
}
