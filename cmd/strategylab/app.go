package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/history"
	"strategylab/internal/insight"
	"strategylab/internal/marketdata"
	"strategylab/internal/portfolio"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/strategy/builtins"
	"strategylab/internal/telemetry"
	"strategylab/internal/util"
	"strategylab/internal/validate"
)

// app holds the wiring shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	bars     *store.ParquetStore
	results  *store.SQLiteStore
	metrics  *telemetry.Recorder
	registry *strategy.Registry
	redis    *redis.Client
}

func newApp(g *globalFlags) (*app, error) {
	if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", g.envFile, err)
	}

	path := config.Path(g.configPath)
	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && g.configPath == "":
		cfg = config.Default()
	case err != nil:
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	bars.Market = cfg.Backtest.Market

	if err := os.MkdirAll(dirOf(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating result store directory: %w", err)
	}
	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}

	registry := strategy.NewRegistry()
	builtins.Register(registry)

	a := &app{
		cfg:      cfg,
		log:      logger,
		bars:     bars,
		results:  results,
		metrics:  telemetry.NewRecorder(),
		registry: registry,
	}
	if cfg.AI.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.AI.RedisAddr})
	}
	return a, nil
}

// close flushes the metrics textfile and releases the stores.
func (a *app) close() {
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Warn("writing metrics textfile", "path", path, "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.results.Close(); err != nil {
		a.log.Warn("closing result store", "error", err)
	}
}

// source builds a snapshot source over the stored bars and scores.
func (a *app) source(start, end time.Time) *marketdata.BarSource {
	return marketdata.NewBarSource(a.bars, a.bars, marketdata.BarSourceConfig{
		Market:       a.cfg.Backtest.Market,
		From:         start,
		To:           end,
		LookbackDays: a.cfg.Backtest.LookbackDays,
	}, a.log)
}

// insights builds the insight provider chain: score model, resilience
// wrapper and, when redis is configured, a cache in front.
func (a *app) insights() insight.Provider {
	ai := a.cfg.AI
	var p insight.Provider = insight.NewResilient(insight.NewScoreProvider(), insight.ResilientConfig{
		Name:            "score-model",
		RateLimitPerMin: ai.RateLimitPerMin,
		MaxAttempts:     ai.MaxAttempts,
		RetryBaseDelay:  ai.RetryBaseDelay,
		BreakerFailures: ai.BreakerFailures,
		BreakerTimeout:  ai.BreakerTimeout,
	}, a.log)
	if a.redis != nil {
		p = insight.NewCache(p, a.redis, ai.CacheTTL, a.log)
	}
	return p
}

func (a *app) engine(start, end time.Time) *backtest.Engine {
	return backtest.NewEngine(
		a.source(start, end),
		a.insights(),
		portfolio.NewRiskManager(a.cfg.Backtest.MaxPositionPct),
		a.metrics,
		a.log,
	)
}

func (a *app) validator(start, end time.Time) *validate.Validator {
	v := validate.NewValidator(a.engine(start, end), a.cfg.Validation, a.metrics, a.log)
	v.Concurrency = a.cfg.Backtest.Concurrency
	return v
}

func (a *app) analyzer(start, end time.Time) *history.Analyzer {
	return history.NewAnalyzer(a.source(start, end), a.results, a.log)
}

// symbols returns the explicit list, else the configured universe, else
// every stored symbol.
func (a *app) symbols(ctx context.Context, flag string) ([]string, error) {
	if list := splitList(flag); len(list) > 0 {
		return list, nil
	}
	if len(a.cfg.Backtest.Symbols) > 0 {
		return a.cfg.Backtest.Symbols, nil
	}
	list, err := a.bars.ListSymbols(ctx, a.cfg.Backtest.Market)
	if err != nil {
		return nil, fmt.Errorf("listing stored symbols: %w", err)
	}
	if len(list) == 0 {
		return nil, errors.New("no symbols given and none stored; run fetch first")
	}
	return list, nil
}

// saveRun persists a run to SQLite and exports its curve and trades.
func (a *app) saveRun(ctx context.Context, r *domain.BacktestResult) error {
	if err := a.results.SaveBacktest(ctx, r); err != nil {
		return fmt.Errorf("saving run %s: %w", r.ID, err)
	}
	if err := a.bars.ExportRun(ctx, r); err != nil {
		return fmt.Errorf("exporting run %s: %w", r.ID, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i > 0 {
		return path[:i]
	}
	return "."
}
