package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
	"strategylab/internal/store"
)

var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSMAAlignment(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, got, 5)
	assert.Zero(t, got[0])
	assert.Zero(t, got[1])
	assert.InDelta(t, 2.0, got[2], 1e-9)
	assert.InDelta(t, 3.0, got[3], 1e-9)
	assert.InDelta(t, 4.0, got[4], 1e-9)

	short := SMA([]float64{1, 2}, 3)
	assert.Equal(t, []float64{0, 0}, short)
}

func TestRSIBounds(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	rsi := RSI(closes, RSIWindow)
	require.Len(t, rsi, len(closes))
	for i, v := range rsi {
		assert.GreaterOrEqual(t, v, 0.0, "index %d", i)
		assert.LessOrEqual(t, v, 100.0, "index %d", i)
	}
	assert.Zero(t, rsi[0])
}

func TestMomentum(t *testing.T) {
	got := Momentum([]float64{100, 105, 110}, 2)
	assert.Equal(t, []float64{0, 0, 10}, got)
}

func TestFromClosesSkipsWeekends(t *testing.T) {
	snaps, err := FromCloses("aapl", monday, []float64{1, 2, 3, 4, 5, 6}, 100)
	require.NoError(t, err)
	require.Len(t, snaps, 6)
	assert.Equal(t, time.Friday, snaps[4].Date.Weekday())
	assert.Equal(t, time.Monday, snaps[5].Date.Weekday())
	assert.Equal(t, 6.0, snaps[5].Price)

	_, err = FromCloses("aapl", monday, []float64{1, 0}, 100)
	assert.True(t, errors.Is(err, domain.ErrInvalidSnapshot))
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource()
	ctx := context.Background()

	require.NoError(t, src.Add(domain.DailySnapshot{Symbol: "aapl", Date: monday.Add(15 * time.Hour), Price: 10, Close: 10}))

	snap, err := src.Snapshot(ctx, "AAPL", monday)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "AAPL", snap.Symbol)

	gap, err := src.Snapshot(ctx, "AAPL", monday.AddDate(0, 0, 1))
	assert.NoError(t, err)
	assert.Nil(t, gap, "missing day is a data gap")

	err = src.Add(domain.DailySnapshot{Symbol: "AAPL", Date: monday})
	assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)
}

type countingBarStore struct {
	store.BarStore
	mu    sync.Mutex
	reads int
}

func (c *countingBarStore) ReadBars(ctx context.Context, symbol, market string, start, end time.Time) ([]domain.Bar, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.BarStore.ReadBars(ctx, symbol, market, start, end)
}

func TestBarSourceEnrichesAndCaches(t *testing.T) {
	ctx := context.Background()
	ps := store.NewParquetStore(t.TempDir())

	var bars []domain.Bar
	d := monday
	for i := 0; i < 80; i++ {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		bars = append(bars, domain.Bar{Symbol: "AAPL", Timestamp: d, Open: 100, High: 101, Low: 99, Close: 100 + float64(i), Volume: 1000})
		d = d.AddDate(0, 0, 1)
	}
	require.NoError(t, ps.WriteBars(ctx, bars))
	last := bars[len(bars)-1].Timestamp
	require.NoError(t, ps.WriteScores(ctx, "us", []domain.AnalysisScore{
		{Symbol: "AAPL", Date: last, TechnicalScore: 70, SentimentScore: 65, FinalScore: 68},
	}))

	counting := &countingBarStore{BarStore: ps}
	src := NewBarSource(counting, ps, BarSourceConfig{Market: "us", From: bars[70].Timestamp, To: last, LookbackDays: 120}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = src.Snapshot(ctx, "AAPL", last)
		}()
	}
	wg.Wait()

	snap, err := src.Snapshot(ctx, "aapl", last)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, counting.reads, "series loaded once")
	assert.Equal(t, 179.0, snap.Price)
	assert.InDelta(t, 169.5, snap.SMAShort, 1e-9)
	assert.InDelta(t, 149.5, snap.SMALong, 1e-9)
	assert.Equal(t, 68.0, snap.FinalScore)
	assert.Greater(t, snap.Momentum, 0.0)

	weekend, err := src.Snapshot(ctx, "AAPL", time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Nil(t, weekend)

	missing, err := src.Snapshot(ctx, "MSFT", last)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}
