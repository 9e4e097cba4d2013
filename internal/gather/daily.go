package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/marketdata"
	"strategylab/internal/stats"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*DailyBarGatherer)(nil)

// DailyConfig configures a DailyBarGatherer.
type DailyConfig struct {
	Symbols         []string
	Range           DateRange
	Market          string
	BatchSize       int // symbols per API call
	RateLimitPerMin int
	MaxAttempts     int
	RetryBaseDelay  time.Duration
}

// Summary reports the outcome of one gathering pass.
type Summary struct {
	Batches       int
	FailedBatches int
	Bars          int
	Symbols       int // symbols that returned at least one bar
	Scores        int
}

// DailyBarGatherer downloads daily bars for a fixed symbol list and writes
// them to the bar store. When a score store is set it also derives
// technical scores from the downloaded bars.
type DailyBarGatherer struct {
	fetcher BarFetcher
	bars    store.BarStore
	scores  store.ScoreStore // may be nil
	cfg     DailyConfig
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer. Zero batch, rate and
// attempt settings fall back to 100 symbols, 200 calls per minute and 3
// attempts.
func NewDailyBarGatherer(fetcher BarFetcher, bars store.BarStore, scores store.ScoreStore, cfg DailyConfig, log *slog.Logger) *DailyBarGatherer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 200
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.Market == "" {
		cfg.Market = string(domain.MarketUS)
	}
	return &DailyBarGatherer{
		fetcher: fetcher,
		bars:    bars,
		scores:  scores,
		cfg:     cfg,
		limiter: util.NewRateLimiter(cfg.RateLimitPerMin),
		log:     util.OrDefault(log).With("gatherer", "daily-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "daily-bars" }

// Run implements Gatherer.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	_, err := g.Gather(ctx)
	return err
}

// Gather fetches every batch, retrying transient failures. A batch that
// still fails is logged and skipped; Gather then reports an error after
// the remaining batches are done.
func (g *DailyBarGatherer) Gather(ctx context.Context) (Summary, error) {
	var sum Summary
	symbols := normalize(g.cfg.Symbols)
	if len(symbols) == 0 {
		return sum, ErrNoSymbols
	}
	start, end, err := g.cfg.Range.Bounds()
	if err != nil {
		return sum, err
	}
	runStart := time.Now()

	for i := 0; i < len(symbols); i += g.cfg.BatchSize {
		batch := symbols[i:min(i+g.cfg.BatchSize, len(symbols))]
		sum.Batches++

		var bars []domain.Bar
		err := util.Retry(ctx, g.cfg.MaxAttempts, g.cfg.RetryBaseDelay, func() error {
			if err := g.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
			var err error
			bars, err = g.fetcher.FetchDailyBars(ctx, batch, start, end)
			return err
		})
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if err != nil {
			sum.FailedBatches++
			g.log.Warn("batch failed", "first", batch[0], "size", len(batch), "error", err)
			continue
		}
		if len(bars) == 0 {
			continue
		}

		if err := g.bars.WriteBars(ctx, bars); err != nil {
			return sum, fmt.Errorf("writing bars: %w", err)
		}
		sum.Bars += len(bars)

		bySymbol := groupBySymbol(bars)
		sum.Symbols += len(bySymbol)
		if g.scores != nil {
			var scores []domain.AnalysisScore
			for _, series := range bySymbol {
				scores = append(scores, g.scoreSeries(ctx, series)...)
			}
			if len(scores) > 0 {
				if err := g.scores.WriteScores(ctx, g.cfg.Market, scores); err != nil {
					return sum, fmt.Errorf("writing scores: %w", err)
				}
				sum.Scores += len(scores)
			}
		}
		g.log.Debug("batch stored", "first", batch[0], "size", len(batch), "bars", len(bars))
	}

	g.log.Info("gathering finished",
		"batches", sum.Batches,
		"failed", sum.FailedBatches,
		"bars", sum.Bars,
		"symbols", sum.Symbols,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	if sum.FailedBatches > 0 {
		return sum, fmt.Errorf("%d of %d batches failed", sum.FailedBatches, sum.Batches)
	}
	return sum, nil
}

// warmupDays is the calendar span of stored history read ahead of a fetched
// series, enough for the long moving average on its first bar.
const warmupDays = 2 * marketdata.LongWindow

// scoreSeries derives technical scores for the fetched bars of one symbol,
// computing the indicators over the stored history that precedes them.
func (g *DailyBarGatherer) scoreSeries(ctx context.Context, series []domain.Bar) []domain.AnalysisScore {
	symbol := series[0].Symbol
	first := domain.Day(series[0].Timestamp)
	full, err := g.bars.ReadBars(ctx, symbol, g.cfg.Market, first.AddDate(0, 0, -warmupDays), series[len(series)-1].Timestamp)
	if err != nil {
		g.log.Warn("reading warm-up bars", "symbol", symbol, "error", err)
		full = series
	}
	if len(full) < len(series) {
		full = series
	}

	var out []domain.AnalysisScore
	for _, sc := range TechnicalScores(full) {
		if !sc.Date.Before(first) {
			out = append(out, sc)
		}
	}
	return out
}

// TechnicalScores rates each bar of one symbol's date-ordered series on a
// 0-100 scale from its moving-average spread, RSI and momentum. Bars
// without any available indicator get no score.
func TechnicalScores(series []domain.Bar) []domain.AnalysisScore {
	snaps := marketdata.Enrich(series, nil)
	out := make([]domain.AnalysisScore, 0, len(snaps))
	for _, s := range snaps {
		var parts []float64
		if s.SMALong > 0 {
			parts = append(parts, stats.Clamp((s.SMAShort-s.SMALong)/s.SMALong*10, -1, 1))
		}
		if s.RSI > 0 {
			parts = append(parts, stats.Clamp((s.RSI-50)/50, -1, 1))
		}
		if s.Momentum != 0 {
			parts = append(parts, stats.Clamp(s.Momentum/10, -1, 1))
		}
		if len(parts) == 0 {
			continue
		}
		score := 50 + 50*stats.Mean(parts)
		out = append(out, domain.AnalysisScore{
			Symbol:         s.Symbol,
			Date:           s.Date,
			TechnicalScore: score,
			FinalScore:     score,
		})
	}
	return out
}

func groupBySymbol(bars []domain.Bar) map[string][]domain.Bar {
	out := make(map[string][]domain.Bar)
	for _, b := range bars {
		out[b.Symbol] = append(out[b.Symbol], b)
	}
	for _, series := range out {
		sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	}
	return out
}

func normalize(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
