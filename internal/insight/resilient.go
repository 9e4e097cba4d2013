package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"strategylab/internal/domain"
	"strategylab/internal/util"
)

// ResilientConfig tunes the call policy wrapped around a Provider.
type ResilientConfig struct {
	Name            string
	RateLimitPerMin int // <= 0 disables pacing
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerTimeout  time.Duration // open -> half-open delay
}

// Resilient paces, retries and circuit-breaks calls to another Provider.
// The policy lives here so the simulation loop stays a plain sequence of
// calls.
type Resilient struct {
	next        Provider
	cb          *gobreaker.CircuitBreaker
	limiter     *util.RateLimiter
	maxAttempts int
	baseDelay   time.Duration
	log         *slog.Logger
}

// NewResilient wraps next with the given policy.
func NewResilient(next Provider, cfg ResilientConfig, log *slog.Logger) *Resilient {
	if cfg.Name == "" {
		cfg.Name = "insight"
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	log = util.OrDefault(log)

	failures := cfg.BreakerFailures
	st := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("insight breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Resilient{
		next:        next,
		cb:          gobreaker.NewCircuitBreaker(st),
		limiter:     util.NewRateLimiter(cfg.RateLimitPerMin),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		log:         log,
	}
}

// State returns the breaker state ("closed", "half-open" or "open").
func (r *Resilient) State() string {
	return r.cb.State().String()
}

// Insights implements Provider. An open breaker fails fast without retries.
func (r *Resilient) Insights(ctx context.Context, date time.Time, snapshots []domain.DailySnapshot) (*domain.InsightBundle, error) {
	var bundle *domain.InsightBundle
	err := util.Retry(ctx, r.maxAttempts, r.baseDelay, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		res, err := r.cb.Execute(func() (interface{}, error) {
			return r.next.Insights(ctx, date, snapshots)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return util.Permanent(err)
			}
			r.log.Debug("insight call failed", "date", domain.DayKey(date), "error", err)
			return err
		}
		bundle, _ = res.(*domain.InsightBundle)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insights for %s: %w", domain.DayKey(date), err)
	}
	return bundle, nil
}
