// Package gather downloads market data into the local stores.
package gather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"strategylab/internal/domain"
)

// Configuration errors returned before any download.
var (
	ErrNoSymbols    = errors.New("no symbols to gather")
	ErrInvalidRange = errors.New("invalid gather range")
)

// Gatherer is a named download job.
type Gatherer interface {
	Name() string
	// Run blocks until the job is done or ctx is cancelled.
	Run(ctx context.Context) error
}

// BarFetcher downloads daily bars for a batch of symbols.
type BarFetcher interface {
	FetchDailyBars(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Bounds returns the first instant of Start and the last second of End,
// both in UTC.
func (r DateRange) Bounds() (time.Time, time.Time, error) {
	start, end := domain.Day(r.Start), domain.Day(r.End)
	if start.IsZero() || end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s..%s", ErrInvalidRange, domain.DayKey(start), domain.DayKey(end))
	}
	return start, end.Add(24*time.Hour - time.Second), nil
}
