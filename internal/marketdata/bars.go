package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

// Compile-time interface check.
var _ Source = (*BarSource)(nil)

// BarSource serves snapshots derived from stored daily bars and optional
// analysis scores. Each symbol's series is loaded once, enriched with
// indicators, and cached for concurrent readers.
type BarSource struct {
	bars     store.BarStore
	scores   store.ScoreStore // may be nil
	market   string
	from, to time.Time
	log      *slog.Logger

	mu    sync.RWMutex
	cache map[string]map[string]domain.DailySnapshot
}

// BarSourceConfig configures a BarSource.
type BarSourceConfig struct {
	Market       string
	From         time.Time
	To           time.Time
	LookbackDays int // calendar days loaded before From for indicator warm-up
}

// NewBarSource creates a BarSource serving dates in [cfg.From, cfg.To].
func NewBarSource(bars store.BarStore, scores store.ScoreStore, cfg BarSourceConfig, log *slog.Logger) *BarSource {
	if cfg.Market == "" {
		cfg.Market = string(domain.MarketUS)
	}
	from := domain.Day(cfg.From).AddDate(0, 0, -cfg.LookbackDays)
	return &BarSource{
		bars:   bars,
		scores: scores,
		market: cfg.Market,
		from:   from,
		to:     domain.Day(cfg.To),
		log:    util.OrDefault(log),
		cache:  make(map[string]map[string]domain.DailySnapshot),
	}
}

// Snapshot implements Source.
func (s *BarSource) Snapshot(ctx context.Context, symbol string, date time.Time) (*domain.DailySnapshot, error) {
	series, err := s.series(ctx, strings.ToUpper(symbol))
	if err != nil {
		return nil, err
	}
	snap, ok := series[domain.DayKey(date)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *BarSource) series(ctx context.Context, symbol string) (map[string]domain.DailySnapshot, error) {
	s.mu.RLock()
	series, ok := s.cache[symbol]
	s.mu.RUnlock()
	if ok {
		return series, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if series, ok := s.cache[symbol]; ok {
		return series, nil
	}

	series, err := s.load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cache[symbol] = series
	return series, nil
}

func (s *BarSource) load(ctx context.Context, symbol string) (map[string]domain.DailySnapshot, error) {
	bars, err := s.bars.ReadBars(ctx, symbol, s.market, s.from, s.to.Add(24*time.Hour-time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", symbol, err)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	var scores map[string]domain.AnalysisScore
	if s.scores != nil {
		list, err := s.scores.ReadScores(ctx, symbol, s.market, s.from, s.to.Add(24*time.Hour-time.Millisecond))
		if err != nil {
			return nil, err
		}
		scores = make(map[string]domain.AnalysisScore, len(list))
		for _, sc := range list {
			scores[domain.DayKey(sc.Date)] = sc
		}
	}

	series := make(map[string]domain.DailySnapshot, len(bars))
	dropped := 0
	for _, snap := range Enrich(bars, scores) {
		if err := snap.Validate(); err != nil {
			dropped++
			continue
		}
		series[domain.DayKey(snap.Date)] = snap
	}
	if dropped > 0 {
		s.log.Warn("dropped invalid bars", "symbol", symbol, "count", dropped)
	}
	s.log.Debug("loaded series", "symbol", symbol, "bars", len(series))
	return series, nil
}
