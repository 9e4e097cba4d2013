// Package history analyses stored market history: regime segmentation,
// prediction accuracy and sentiment impact.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/marketdata"
	"strategylab/internal/perf"
	"strategylab/internal/stats"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

// Regime classification parameters.
const (
	ShortWindow = marketdata.ShortWindow
	LongWindow  = marketdata.LongWindow
	bullBand    = 1.02
	bearBand    = 0.98

	// OutcomeHorizon is the number of trading days searched for the close
	// that realizes a prediction.
	OutcomeHorizon = perf.OutcomeHorizon

	momentumLookback = 20
)

// ErrInvalidRange is returned when end precedes start.
var ErrInvalidRange = errors.New("end date before start date")

// Analyzer reads snapshots and stored predictions. It holds no per-call
// state and is safe for concurrent use.
type Analyzer struct {
	source      marketdata.Source
	predictions store.PredictionSource
	calendar    *util.TradingCalendar
	log         *slog.Logger
}

// NewAnalyzer creates an Analyzer. predictions may be nil, in which case
// no AI statistics are produced.
func NewAnalyzer(source marketdata.Source, predictions store.PredictionSource, log *slog.Logger) *Analyzer {
	return &Analyzer{
		source:      source,
		predictions: predictions,
		calendar:    util.NewTradingCalendar(domain.MarketUS),
		log:         util.OrDefault(log),
	}
}

// indexPoint is one day of the composite index.
type indexPoint struct {
	date   time.Time
	price  float64
	volume float64
}

// IdentifyRegimes segments [start, end] into contiguous bull, bear and
// sideways periods of a composite index of symbols (mean close, summed
// volume). Classification compares the short and long moving averages and
// begins once the long window is full; fewer samples yield no segments.
func (a *Analyzer) IdentifyRegimes(ctx context.Context, start, end time.Time, symbols []string) ([]domain.MarketRegimeAnalysis, error) {
	if domain.Day(end).Before(domain.Day(start)) {
		return nil, ErrInvalidRange
	}
	index, err := a.compositeIndex(ctx, start, end, symbols)
	if err != nil {
		return nil, err
	}
	if len(index) < LongWindow {
		a.log.Info("not enough history for regimes", "samples", len(index), "need", LongWindow)
		return nil, nil
	}

	prices := make([]float64, len(index))
	for i, p := range index {
		prices[i] = p.price
	}
	short := marketdata.SMA(prices, ShortWindow)
	long := marketdata.SMA(prices, LongWindow)

	type segment struct {
		from, to int
		regime   domain.Regime
	}
	var segs []segment
	first := LongWindow - 1
	cur := segment{from: first, regime: classify(short[first], long[first])}
	for i := first + 1; i < len(index); i++ {
		r := classify(short[i], long[i])
		if r == cur.regime {
			continue
		}
		cur.to = i - 1
		segs = append(segs, cur)
		cur = segment{from: i, regime: r}
	}
	cur.to = len(index) - 1
	segs = append(segs, cur)

	scored, _, err := a.scoredPredictions(ctx, index[first].date, index[len(index)-1].date, symbols)
	if err != nil {
		return nil, err
	}

	out := make([]domain.MarketRegimeAnalysis, 0, len(segs))
	for _, s := range segs {
		out = append(out, summarizeSegment(index[s.from:s.to+1], s.regime, scored))
	}
	a.log.Info("regimes identified", "segments", len(out), "samples", len(index))
	return out, nil
}

func classify(short, long float64) domain.Regime {
	switch {
	case short > long*bullBand:
		return domain.RegimeBull
	case short < long*bearBand:
		return domain.RegimeBear
	default:
		return domain.RegimeSideways
	}
}

// compositeIndex averages the closes of symbols per trading day. A symbol
// without data on a day contributes its last close, or its first close
// before it has traded, so gaps do not move the index level. Days on which
// no symbol has data are dropped.
func (a *Analyzer) compositeIndex(ctx context.Context, start, end time.Time, symbols []string) ([]indexPoint, error) {
	days := a.calendar.TradingDays(start, end)
	closes := make([][]float64, 0, len(symbols))
	volume := make([]float64, len(days))
	observed := make([]bool, len(days))

	for _, sym := range symbols {
		series := make([]float64, len(days))
		seen := false
		for i, day := range days {
			snap, err := a.source.Snapshot(ctx, sym, day)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				a.log.Warn("snapshot unavailable", "symbol", sym, "date", domain.DayKey(day), "error", err)
				continue
			}
			if snap == nil || snap.Price <= 0 {
				continue
			}
			series[i] = snap.Price
			volume[i] += float64(snap.Volume)
			observed[i] = true
			seen = true
		}
		if seen {
			closes = append(closes, fillGaps(series))
		}
	}

	var out []indexPoint
	for i, day := range days {
		if !observed[i] {
			continue
		}
		var sum float64
		for _, series := range closes {
			sum += series[i]
		}
		out = append(out, indexPoint{date: day, price: sum / float64(len(closes)), volume: volume[i]})
	}
	return out, nil
}

// fillGaps replaces zero entries with the previous non-zero value, and
// leading zeros with the first non-zero value. series must hold at least
// one non-zero value.
func fillGaps(series []float64) []float64 {
	last := 0.0
	for _, v := range series {
		if v > 0 {
			last = v
			break
		}
	}
	for i, v := range series {
		if v > 0 {
			last = v
			continue
		}
		series[i] = last
	}
	return series
}

func summarizeSegment(points []indexPoint, regime domain.Regime, scored []scoredPrediction) domain.MarketRegimeAnalysis {
	prices := make([]float64, len(points))
	volumes := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.price
		volumes[i] = p.volume
	}
	returns := perf.SeriesReturns(prices)

	r := domain.MarketRegimeAnalysis{
		Start:           points[0].date,
		End:             points[len(points)-1].date,
		Regime:          regime,
		Days:            len(points),
		Characteristics: characteristics(prices, volumes),
		AvgDailyReturn:  stats.Mean(returns) * 100,
		Volatility:      perf.Volatility(returns),
		MaxDrawdown:     perf.MaxDrawdown(prices),
	}
	if first := prices[0]; first > 0 {
		r.PeriodReturn = (prices[len(prices)-1] - first) / first * 100
	}

	var acc []float64
	for _, s := range scored {
		if !s.Date.Before(r.Start) && !s.Date.After(r.End) {
			acc = append(acc, s.accuracy)
		}
	}
	if len(acc) > 0 {
		r.AIAccuracy = stats.Mean(acc) * 100
		r.AIPredictionCount = len(acc)
	}
	return r
}

func characteristics(prices, volumes []float64) domain.RegimeCharacteristics {
	c := domain.RegimeCharacteristics{
		AvgPrice:  stats.Mean(prices),
		AvgVolume: stats.Mean(volumes),
	}
	if c.AvgPrice > 0 {
		c.PriceVolatility = stats.PopStdDev(prices) / c.AvgPrice * 100
	}
	if c.AvgVolume > 0 {
		c.VolumeVolatility = stats.PopStdDev(volumes) / c.AvgVolume * 100
	}

	x := make([]float64, len(prices))
	for i := range x {
		x[i] = float64(i)
	}
	r := stats.Pearson(x, prices)
	c.TrendStrength = r * r * 100

	if n := len(prices); n >= momentumLookback {
		if past := prices[n-momentumLookback]; past > 0 {
			c.Momentum = (prices[n-1]/past - 1) * 100
		}
	}
	return c
}

// closes memoizes snapshot closes for one analysis call.
type closes struct {
	a    *Analyzer
	seen map[string]float64 // symbol|day -> close, 0 when missing
}

func (a *Analyzer) newCloses() *closes {
	return &closes{a: a, seen: make(map[string]float64)}
}

func (c *closes) at(ctx context.Context, symbol string, day time.Time) (float64, error) {
	key := symbol + "|" + domain.DayKey(day)
	if v, ok := c.seen[key]; ok {
		return v, nil
	}
	snap, err := c.a.source.Snapshot(ctx, symbol, day)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c.a.log.Debug("snapshot unavailable", "symbol", symbol, "date", domain.DayKey(day), "error", err)
		snap = nil
	}
	v := 0.0
	if snap != nil && snap.Price > 0 {
		v = snap.Price
	}
	c.seen[key] = v
	return v, nil
}

// outcome returns the fractional change from symbol's close on day to the
// next available close within OutcomeHorizon trading days.
func (c *closes) outcome(ctx context.Context, symbol string, day time.Time) (domain.Outcome, bool, error) {
	base, err := c.at(ctx, symbol, day)
	if err != nil || base <= 0 {
		return domain.Outcome{}, false, err
	}
	next := day
	for i := 0; i < OutcomeHorizon; i++ {
		next = c.a.calendar.NextTradingDay(next)
		px, err := c.at(ctx, symbol, next)
		if err != nil {
			return domain.Outcome{}, false, err
		}
		if px > 0 {
			change := (px - base) / base
			return domain.Outcome{Direction: domain.DirectionOf(change), Change: change}, true, nil
		}
	}
	return domain.Outcome{}, false, nil
}

// scoredPrediction is a stored prediction with its realized accuracy.
type scoredPrediction struct {
	domain.Prediction
	accuracy float64
}

// scoredPredictions loads the stored predictions in [start, end] and scores
// those with a realized outcome. It also returns the number loaded.
func (a *Analyzer) scoredPredictions(ctx context.Context, start, end time.Time, symbols []string) ([]scoredPrediction, int, error) {
	if a.predictions == nil {
		return nil, 0, nil
	}
	preds, err := a.predictions.ListPredictions(ctx, start, end, symbols)
	if err != nil {
		return nil, 0, fmt.Errorf("loading predictions: %w", err)
	}
	c := a.newCloses()
	out := make([]scoredPrediction, 0, len(preds))
	for _, p := range preds {
		p.Date = domain.Day(p.Date)
		o, ok, err := c.outcome(ctx, p.Symbol, p.Date)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		out = append(out, scoredPrediction{Prediction: p, accuracy: perf.ScorePrediction(p, o)})
	}
	return out, len(preds), nil
}
