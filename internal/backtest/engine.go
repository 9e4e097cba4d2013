// Package backtest replays a strategy over daily snapshots and produces a
// BacktestResult.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"strategylab/internal/domain"
	"strategylab/internal/insight"
	"strategylab/internal/marketdata"
	"strategylab/internal/perf"
	"strategylab/internal/portfolio"
	"strategylab/internal/strategy"
	"strategylab/internal/telemetry"
	"strategylab/internal/util"
)

// Configuration errors returned by Run before any simulation work.
var (
	ErrInvalidRange      = errors.New("end date before start date")
	ErrNoSymbols         = errors.New("empty symbol universe")
	ErrNoStrategy        = errors.New("no strategy")
	ErrInvalidCapital    = errors.New("initial capital must be positive")
	ErrInvalidCommission = errors.New("commission rate must be in [0, 1)")
	ErrNoInsightProvider = errors.New("ai requested without an insight provider")
)

// RunConfig describes one simulation run.
type RunConfig struct {
	Strategy       strategy.Strategy
	Start          time.Time
	End            time.Time
	Symbols        []string
	InitialCapital float64
	UseAI          bool
	CommissionRate float64
}

// Validate checks the configuration and returns the first fatal error.
func (c RunConfig) Validate() error {
	switch {
	case c.Strategy == nil:
		return ErrNoStrategy
	case domain.Day(c.End).Before(domain.Day(c.Start)):
		return fmt.Errorf("%w: %s < %s", ErrInvalidRange, domain.DayKey(c.End), domain.DayKey(c.Start))
	case len(normalizeSymbols(c.Symbols)) == 0:
		return ErrNoSymbols
	case c.InitialCapital <= 0:
		return fmt.Errorf("%w: %v", ErrInvalidCapital, c.InitialCapital)
	case c.CommissionRate < 0 || c.CommissionRate >= 1:
		return fmt.Errorf("%w: %v", ErrInvalidCommission, c.CommissionRate)
	}
	return nil
}

// Engine runs simulations against a daily data source. An Engine holds no
// per-run state and may execute runs concurrently.
type Engine struct {
	source   marketdata.Source
	insights insight.Provider
	risk     *portfolio.RiskManager
	calendar *util.TradingCalendar
	metrics  *telemetry.Recorder
	log      *slog.Logger
}

// NewEngine creates an Engine. insights may be nil when no run uses AI;
// risk, metrics and log may be nil for defaults.
func NewEngine(
	source marketdata.Source,
	insights insight.Provider,
	risk *portfolio.RiskManager,
	metrics *telemetry.Recorder,
	log *slog.Logger,
) *Engine {
	if risk == nil {
		risk = portfolio.NewRiskManager(portfolio.DefaultMaxPositionPct)
	}
	return &Engine{
		source:   source,
		insights: insights,
		risk:     risk,
		calendar: util.NewTradingCalendar(domain.MarketUS),
		metrics:  metrics,
		log:      util.OrDefault(log),
	}
}

// run carries the mutable state of one simulation.
type run struct {
	cfg    RunConfig
	name   string
	ledger *portfolio.Ledger
	result *domain.BacktestResult
	closes map[string][]closePoint
	log    *slog.Logger
}

type closePoint struct {
	date  time.Time
	close float64
}

// Run simulates cfg.Strategy from cfg.Start to cfg.End inclusive. Missing
// data, strategy failures and insight failures are isolated per symbol or
// day; only configuration errors and context cancellation are returned.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*domain.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.UseAI && e.insights == nil {
		return nil, ErrNoInsightProvider
	}

	began := time.Now()
	cfg.Start, cfg.End = domain.Day(cfg.Start), domain.Day(cfg.End)
	cfg.Symbols = normalizeSymbols(cfg.Symbols)

	r := &run{
		cfg:    cfg,
		name:   cfg.Strategy.Name(),
		ledger: portfolio.NewLedger(cfg.InitialCapital),
		closes: make(map[string][]closePoint, len(cfg.Symbols)),
		result: &domain.BacktestResult{
			ID:             uuid.NewString(),
			StrategyName:   cfg.Strategy.Name(),
			Start:          cfg.Start,
			End:            cfg.End,
			Symbols:        cfg.Symbols,
			InitialCapital: cfg.InitialCapital,
			FinalCapital:   cfg.InitialCapital,
			UseAI:          cfg.UseAI,
			CommissionRate: cfg.CommissionRate,
		},
	}
	r.log = e.log.With("strategy", r.name, "run", r.result.ID, "ai", cfg.UseAI)

	days := e.calendar.TradingDays(cfg.Start, cfg.End)
	r.result.TradingDays = len(days)
	r.log.Info("backtest started", "start", domain.DayKey(cfg.Start), "end", domain.DayKey(cfg.End),
		"symbols", len(cfg.Symbols), "days", len(days))

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.simulateDay(ctx, r, day)
	}

	e.finish(r)
	e.metrics.RunCompleted(r.name, cfg.UseAI, time.Since(began))
	r.log.Info("backtest finished",
		"trades", len(r.result.Trades),
		"final_capital", r.result.FinalCapital,
		"skipped_days", r.result.SkippedDays,
		"strategy_errors", r.result.StrategyErrors,
	)
	return r.result, nil
}

func (e *Engine) simulateDay(ctx context.Context, r *run, day time.Time) {
	snaps := e.snapshots(ctx, r, day)
	if len(snaps) == 0 {
		r.result.SkippedDays++
		e.metrics.SkippedDay()
		return
	}

	var bundle *domain.InsightBundle
	if r.cfg.UseAI {
		bundle = e.fetchInsights(ctx, r, day, snaps)
	}

	prices := make(map[string]float64, len(snaps))
	for _, snap := range snaps {
		prices[snap.Symbol] = snap.Price
		r.closes[snap.Symbol] = append(r.closes[snap.Symbol], closePoint{date: day, close: snap.Price})

		sig, err := analyze(ctx, r.cfg.Strategy, snap, bundle)
		if err != nil {
			r.result.StrategyErrors++
			e.metrics.StrategyError()
			r.log.Warn("strategy failed", "symbol", snap.Symbol, "date", domain.DayKey(day), "error", err)
			continue
		}
		e.execute(r, snap, sig.Normalized())
	}

	v := r.ledger.MarkToMarket(prices)
	r.result.EquityCurve = append(r.result.EquityCurve, domain.EquityPoint{
		Date:      day,
		Total:     v.Total,
		Cash:      v.Cash,
		Positions: v.Positions,
	})
}

// snapshots collects the day's valid snapshots in symbol order.
func (e *Engine) snapshots(ctx context.Context, r *run, day time.Time) []domain.DailySnapshot {
	snaps := make([]domain.DailySnapshot, 0, len(r.cfg.Symbols))
	for _, sym := range r.cfg.Symbols {
		snap, err := e.source.Snapshot(ctx, sym, day)
		if err != nil {
			r.log.Warn("snapshot unavailable", "symbol", sym, "date", domain.DayKey(day), "error", err)
			continue
		}
		if snap == nil {
			continue
		}
		if err := snap.Validate(); err != nil {
			r.log.Warn("invalid snapshot", "symbol", sym, "date", domain.DayKey(day), "error", err)
			continue
		}
		s := *snap
		s.Symbol = sym
		s.Date = day
		snaps = append(snaps, s)
	}
	return snaps
}

func (e *Engine) fetchInsights(ctx context.Context, r *run, day time.Time, snaps []domain.DailySnapshot) (bundle *domain.InsightBundle) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("insight provider panicked", "date", domain.DayKey(day), "panic", p)
			e.metrics.InsightError()
			bundle = nil
		}
	}()

	b, err := e.insights.Insights(ctx, day, snaps)
	if err != nil {
		r.log.Warn("insights unavailable", "date", domain.DayKey(day), "error", err)
		e.metrics.InsightError()
		return nil
	}
	if b == nil {
		return nil
	}

	for _, snap := range snaps {
		p, ok := b.For(snap.Symbol)
		if !ok {
			continue
		}
		p.Symbol = snap.Symbol
		p.Date = day
		r.result.AIPredictions = append(r.result.AIPredictions, p)
	}
	if b.Regime != "" {
		r.result.MarketRegimes = append(r.result.MarketRegimes, domain.RegimeObservation{
			Date:       day,
			Regime:     b.Regime,
			Confidence: b.RegimeConfidence,
		})
	}
	return b
}

// analyze calls the strategy, turning a panic into an error.
func analyze(ctx context.Context, s strategy.Strategy, snap domain.DailySnapshot, ai *domain.InsightBundle) (sig domain.Signal, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("strategy panic: %v", p)
		}
	}()
	return s.Analyze(ctx, snap, ai)
}

func (e *Engine) execute(r *run, snap domain.DailySnapshot, sig domain.Signal) {
	var (
		trade domain.Trade
		ok    bool
	)
	switch sig.Action {
	case domain.ActionBuy:
		trade, ok = r.ledger.Buy(snap.Symbol, snap.Date, snap.Price, r.cfg.CommissionRate, e.risk.MaxFraction())
		if !ok {
			r.log.Debug("buy skipped", "symbol", snap.Symbol, "date", domain.DayKey(snap.Date), "cash", r.ledger.Cash().String())
			return
		}
	case domain.ActionSell:
		trade, ok = r.ledger.Sell(snap.Symbol, snap.Date, snap.Price, r.cfg.CommissionRate)
		if !ok {
			return
		}
	default:
		return
	}

	trade.Seq = len(r.result.Trades) + 1
	trade.Confidence = sig.Confidence
	r.result.Trades = append(r.result.Trades, trade)
	e.metrics.Trade(r.name, string(trade.Side))
	r.log.Debug("trade executed",
		"symbol", trade.Symbol,
		"date", domain.DayKey(trade.Date),
		"side", trade.Side,
		"qty", trade.Quantity,
		"price", trade.Price.String(),
		"reason", sig.Reason,
	)
}

func (e *Engine) finish(r *run) {
	res := r.result
	if n := len(res.EquityCurve); n > 0 {
		res.FinalCapital = res.EquityCurve[n-1].Total.InexactFloat64()
	}

	in := perf.Input{
		InitialCapital: res.InitialCapital,
		FinalCapital:   res.FinalCapital,
		Start:          res.Start,
		End:            res.End,
		Trades:         res.Trades,
		EquityCurve:    res.EquityCurve,
	}
	if r.cfg.UseAI {
		in.Predictions = scorePredictions(res.AIPredictions, r.closes, e.calendar)
	}
	res.Metrics = perf.Compute(in)
}

// scorePredictions scores each prediction against the next observed close
// of its symbol within perf.OutcomeHorizon trading days. Predictions
// without such a close in the run are left unscored.
func scorePredictions(preds []domain.Prediction, closes map[string][]closePoint, cal *util.TradingCalendar) []perf.Scored {
	var out []perf.Scored
	for _, p := range preds {
		series := closes[p.Symbol]
		i := sort.Search(len(series), func(i int) bool { return !series[i].date.Before(p.Date) })
		if i >= len(series) || !series[i].date.Equal(p.Date) || i+1 >= len(series) {
			continue
		}
		next := series[i+1]
		deadline := p.Date
		for k := 0; k < perf.OutcomeHorizon; k++ {
			deadline = cal.NextTradingDay(deadline)
		}
		if next.date.After(deadline) {
			continue
		}
		base := series[i].close
		change := (next.close - base) / base
		out = append(out, perf.Scored{
			Symbol:     p.Symbol,
			Confidence: p.Confidence,
			Accuracy:   perf.ScorePrediction(p, domain.Outcome{Direction: domain.DirectionOf(change), Change: change}),
		})
	}
	return out
}

// normalizeSymbols upper-cases, trims and de-duplicates symbols, keeping
// first-seen order.
func normalizeSymbols(symbols []string) []string {
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
