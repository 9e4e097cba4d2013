// Package marketdata supplies validated daily snapshots to the simulation
// and analysis packages.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"strategylab/internal/domain"
)

// Source returns the snapshot of one symbol on one day. A missing
// symbol/date combination yields nil, nil: a data gap, not an error.
// Implementations must be safe for concurrent use.
type Source interface {
	Snapshot(ctx context.Context, symbol string, date time.Time) (*domain.DailySnapshot, error)
}

// StaticSource serves snapshots held in memory.
type StaticSource struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.DailySnapshot // symbol -> day key
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{data: make(map[string]map[string]domain.DailySnapshot)}
}

// Add validates and stores snapshots, replacing any existing entry for the
// same symbol and day.
func (s *StaticSource) Add(snaps ...domain.DailySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		if err := snap.Validate(); err != nil {
			return err
		}
		snap.Symbol = strings.ToUpper(snap.Symbol)
		snap.Date = domain.Day(snap.Date)
		bySym, ok := s.data[snap.Symbol]
		if !ok {
			bySym = make(map[string]domain.DailySnapshot)
			s.data[snap.Symbol] = bySym
		}
		bySym[domain.DayKey(snap.Date)] = snap
	}
	return nil
}

// Snapshot implements Source.
func (s *StaticSource) Snapshot(ctx context.Context, symbol string, date time.Time) (*domain.DailySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[strings.ToUpper(symbol)][domain.DayKey(date)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// FromCloses builds validated snapshots for symbol on consecutive weekdays
// starting at start, one per close. Indicators are derived from the closes
// themselves.
func FromCloses(symbol string, start time.Time, closes []float64, volume int64) ([]domain.DailySnapshot, error) {
	bars := make([]domain.Bar, 0, len(closes))
	d := domain.Day(start)
	for _, c := range closes {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		bars = append(bars, domain.Bar{Symbol: symbol, Timestamp: d, Open: c, High: c, Low: c, Close: c, Volume: volume})
		d = d.AddDate(0, 0, 1)
	}
	snaps := Enrich(bars, nil)
	for _, s := range snaps {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("building snapshots for %s: %w", symbol, err)
		}
	}
	return snaps, nil
}
