package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"strategylab/internal/domain"
	"strategylab/internal/util"
)

// Cache memoizes another Provider's bundles in Redis, keyed by day, symbol
// set and snapshot contents. Redis failures degrade to calling the wrapped Provider.
type Cache struct {
	next   Provider
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// NewCache wraps next with a Redis-backed cache. ttl <= 0 keeps entries
// until Redis evicts them.
func NewCache(next Provider, client *redis.Client, ttl time.Duration, log *slog.Logger) *Cache {
	return &Cache{next: next, client: client, ttl: ttl, prefix: "insight", log: util.OrDefault(log)}
}

// Key returns the cache key for a day and its snapshots: the day, the
// sorted symbol set and a digest of the snapshot contents, so a bundle is
// only reused for identical inputs.
func (c *Cache) Key(date time.Time, snapshots []domain.DailySnapshot) string {
	sorted := make([]domain.DailySnapshot, len(snapshots))
	copy(sorted, snapshots)
	for i := range sorted {
		sorted[i].Symbol = strings.ToUpper(sorted[i].Symbol)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	syms := make([]string, len(sorted))
	d := xxhash.New()
	for i, s := range sorted {
		syms[i] = s.Symbol
		fmt.Fprintf(d, "%s|%s|%g|%g|%g|%g|%g|%d|%g|%g|%g|%g|%g|%g|%g;",
			s.Symbol, domain.DayKey(s.Date), s.Open, s.High, s.Low, s.Close, s.Price, s.Volume,
			s.SMAShort, s.SMALong, s.RSI, s.Momentum, s.TechnicalScore, s.SentimentScore, s.FinalScore)
	}
	return fmt.Sprintf("%s:%s:%s:%016x", c.prefix, domain.DayKey(date), strings.Join(syms, ","), d.Sum64())
}

// Insights implements Provider.
func (c *Cache) Insights(ctx context.Context, date time.Time, snapshots []domain.DailySnapshot) (*domain.InsightBundle, error) {
	key := c.Key(date, snapshots)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var b domain.InsightBundle
		if jerr := json.Unmarshal(raw, &b); jerr == nil {
			return &b, nil
		}
		c.log.Warn("discarding corrupt cached insight", "key", key)
	case !errors.Is(err, redis.Nil):
		c.log.Warn("insight cache read failed", "key", key, "error", err)
	}

	b, err := c.next.Insights(ctx, date, snapshots)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}

	data, err := json.Marshal(b)
	if err != nil {
		return b, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("insight cache write failed", "key", key, "error", err)
	}
	return b, nil
}
