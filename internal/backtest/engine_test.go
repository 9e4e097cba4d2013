package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
	"strategylab/internal/insight"
	"strategylab/internal/marketdata"
	"strategylab/internal/portfolio"
	"strategylab/internal/telemetry"
	"strategylab/internal/util"
)

var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// scripted returns fixed actions by day key and HOLD otherwise.
type scripted struct {
	actions map[string]domain.Action
	panicOn string
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Analyze(_ context.Context, snap domain.DailySnapshot, _ *domain.InsightBundle) (domain.Signal, error) {
	if snap.Symbol == s.panicOn {
		panic("boom")
	}
	if a, ok := s.actions[domain.DayKey(snap.Date)]; ok {
		return domain.Signal{Action: a, Confidence: 80}, nil
	}
	return domain.Hold("scripted"), nil
}

// cycle buys, holds and sells on a three-day rotation of the calendar.
type cycle struct{}

func (cycle) Name() string { return "cycle" }

func (cycle) Analyze(_ context.Context, snap domain.DailySnapshot, _ *domain.InsightBundle) (domain.Signal, error) {
	switch snap.Date.YearDay() % 3 {
	case 0:
		return domain.Signal{Action: domain.ActionBuy, Confidence: 60}, nil
	case 2:
		return domain.Signal{Action: domain.ActionSell, Confidence: 60}, nil
	}
	return domain.Hold("cycle"), nil
}

func source(t *testing.T, series map[string][]float64) *marketdata.StaticSource {
	t.Helper()
	src := marketdata.NewStaticSource()
	for sym, closes := range series {
		snaps, err := marketdata.FromCloses(sym, monday, closes, 1000)
		require.NoError(t, err)
		require.NoError(t, src.Add(snaps...))
	}
	return src
}

func baseConfig(s *scripted) RunConfig {
	return RunConfig{
		Strategy:       s,
		Start:          monday,
		End:            monday.AddDate(0, 0, 4),
		Symbols:        []string{"AAA"},
		InitialCapital: 1_000_000,
		CommissionRate: 0.0015,
	}
}

func TestRunConfigErrors(t *testing.T) {
	e := NewEngine(marketdata.NewStaticSource(), nil, nil, nil, nil)
	ctx := context.Background()
	good := baseConfig(&scripted{})

	cases := []struct {
		name   string
		mutate func(*RunConfig)
		want   error
	}{
		{"range", func(c *RunConfig) { c.End = c.Start.AddDate(0, 0, -1) }, ErrInvalidRange},
		{"symbols", func(c *RunConfig) { c.Symbols = []string{" ", ""} }, ErrNoSymbols},
		{"strategy", func(c *RunConfig) { c.Strategy = nil }, ErrNoStrategy},
		{"capital", func(c *RunConfig) { c.InitialCapital = 0 }, ErrInvalidCapital},
		{"negative commission", func(c *RunConfig) { c.CommissionRate = -0.1 }, ErrInvalidCommission},
		{"full commission", func(c *RunConfig) { c.CommissionRate = 1 }, ErrInvalidCommission},
		{"ai", func(c *RunConfig) { c.UseAI = true }, ErrNoInsightProvider},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := good
			tc.mutate(&cfg)
			res, err := e.Run(ctx, cfg)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRunBuyThenSell(t *testing.T) {
	src := source(t, map[string][]float64{"AAA": {70_000, 71_000, 72_000}})
	e := NewEngine(src, nil, portfolio.NewRiskManager(0.70), nil, nil)

	s := &scripted{actions: map[string]domain.Action{
		"2024-01-01": domain.ActionBuy,
		"2024-01-03": domain.ActionSell,
	}}
	res, err := e.Run(context.Background(), baseConfig(s))
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, 1, res.Trades[0].Seq)
	assert.Equal(t, int64(10), res.Trades[0].Quantity)
	assert.Equal(t, 80.0, res.Trades[0].Confidence)
	assert.Equal(t, domain.SideSell, res.Trades[1].Side)

	require.Len(t, res.EquityCurve, 3, "days without data record no equity point")
	assert.True(t, res.EquityCurve[1].Total.Equal(decimal.NewFromInt(1_008_950)), "day 2 total %s", res.EquityCurve[1].Total)
	for _, p := range res.EquityCurve {
		assert.False(t, p.Cash.IsNegative())
		assert.True(t, p.Total.Equal(p.Cash.Add(p.Positions)))
	}

	assert.InDelta(t, 1_017_870.0, res.FinalCapital, 1e-6)
	assert.InDelta(t, 17_870.0, res.Metrics.TotalReturn, 1e-6)
	assert.Equal(t, 5, res.TradingDays)
	assert.Equal(t, 2, res.SkippedDays)
	assert.Equal(t, 1, res.Metrics.WinningTrades)
	assert.InDelta(t, 17_870.0, res.Metrics.ProfitFactor, 1e-6, "no losses: gross gain")
	assert.NotEmpty(t, res.ID)
}

func TestRunCommissionConservation(t *testing.T) {
	src := source(t, map[string][]float64{
		"AAA": {100, 102, 101, 105, 99, 103, 104, 98, 97, 110},
		"BBB": {50, 51, 49, 48, 52, 55, 53, 54, 56, 50},
	})
	e := NewEngine(src, nil, nil, nil, nil)
	cfg := RunConfig{
		Strategy:       cycle{},
		Start:          monday,
		End:            monday.AddDate(0, 0, 13),
		Symbols:        []string{"AAA", "BBB"},
		InitialCapital: 100_000,
		CommissionRate: 0.002,
	}
	res, err := e.Run(context.Background(), cfg)
	require.NoError(t, err)

	cash := decimal.NewFromFloat(cfg.InitialCapital)
	fees := decimal.Zero
	for _, tr := range res.Trades {
		switch tr.Side {
		case domain.SideBuy:
			assert.True(t, tr.NetAmount.Equal(tr.Amount.Add(tr.Commission)))
			assert.True(t, tr.CashDelta.Equal(tr.NetAmount.Neg()))
		case domain.SideSell:
			assert.True(t, tr.NetAmount.Equal(tr.Amount.Sub(tr.Commission)))
			assert.True(t, tr.CashDelta.Equal(tr.NetAmount))
		}
		cash = cash.Add(tr.CashDelta)
		fees = fees.Add(tr.Commission)
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	assert.True(t, cash.Equal(last.Cash), "replayed cash %s, ledger cash %s", cash, last.Cash)
	assert.True(t, fees.IsPositive())
}

func TestRunWithoutData(t *testing.T) {
	e := NewEngine(marketdata.NewStaticSource(), nil, nil, nil, nil)
	res, err := e.Run(context.Background(), baseConfig(&scripted{}))
	require.NoError(t, err)

	assert.Equal(t, 1_000_000.0, res.FinalCapital)
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.EquityCurve)
	assert.Equal(t, res.TradingDays, res.SkippedDays)
	assert.Equal(t, domain.PerformanceMetrics{}, res.Metrics)
}

func TestRunIsolatesStrategyPanics(t *testing.T) {
	src := source(t, map[string][]float64{
		"AAA": {10, 11, 12, 13, 14},
		"BAD": {10, 11, 12, 13, 14},
	})
	rec := telemetry.NewRecorder()
	e := NewEngine(src, nil, nil, rec, nil)

	cfg := baseConfig(&scripted{
		panicOn: "BAD",
		actions: map[string]domain.Action{"2024-01-01": domain.ActionBuy},
	})
	cfg.Symbols = []string{"bad", "aaa", "AAA"}
	res, err := e.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"BAD", "AAA"}, res.Symbols)
	assert.Equal(t, 5, res.StrategyErrors)
	assert.Len(t, res.EquityCurve, 5)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "AAA", res.Trades[0].Symbol)
}

func TestRunInsightFailureContinues(t *testing.T) {
	src := source(t, map[string][]float64{"AAA": {10, 11, 12, 13, 14}})
	failing := insight.ProviderFunc(func(context.Context, time.Time, []domain.DailySnapshot) (*domain.InsightBundle, error) {
		return nil, errors.New("model offline")
	})
	e := NewEngine(src, failing, nil, nil, nil)

	cfg := baseConfig(&scripted{})
	cfg.UseAI = true
	res, err := e.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, res.EquityCurve, 5)
	assert.Empty(t, res.AIPredictions)
	assert.Zero(t, res.Metrics.AIAccuracy)

	panicking := insight.ProviderFunc(func(context.Context, time.Time, []domain.DailySnapshot) (*domain.InsightBundle, error) {
		panic("nil map")
	})
	res, err = NewEngine(src, panicking, nil, nil, nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, res.EquityCurve, 5)
}

func TestRunScoresPredictions(t *testing.T) {
	src := source(t, map[string][]float64{"AAA": {100, 101, 102, 103, 104, 105, 106, 107, 108, 109}})
	bullish := insight.ProviderFunc(func(_ context.Context, date time.Time, snaps []domain.DailySnapshot) (*domain.InsightBundle, error) {
		b := &domain.InsightBundle{Date: date, Regime: domain.RegimeBull, RegimeConfidence: 0.9, Predictions: map[string]domain.Prediction{}}
		for _, s := range snaps {
			b.Predictions[s.Symbol] = domain.Prediction{Direction: domain.DirectionUp, Confidence: 0.8}
		}
		return b, nil
	})
	e := NewEngine(src, bullish, nil, nil, nil)

	cfg := baseConfig(&scripted{})
	cfg.End = monday.AddDate(0, 0, 13)
	cfg.UseAI = true
	res, err := e.Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, res.AIPredictions, 10)
	assert.Equal(t, "AAA", res.AIPredictions[0].Symbol)
	assert.Equal(t, monday, res.AIPredictions[0].Date)
	assert.Len(t, res.MarketRegimes, 10)
	assert.Equal(t, 9, res.Metrics.AIPredictionCount, "last prediction has no outcome")
	assert.InDelta(t, 100.0, res.Metrics.AIAccuracy, 1e-9)
}

func TestScorePredictionsHorizon(t *testing.T) {
	cal := util.NewTradingCalendar(domain.MarketUS)
	up := func(sym string) domain.Prediction {
		return domain.Prediction{Symbol: sym, Date: monday, Direction: domain.DirectionUp, Confidence: 0.7}
	}
	closes := map[string][]closePoint{
		// next close five trading days later, the following Monday
		"NEAR": {{date: monday, close: 100}, {date: monday.AddDate(0, 0, 7), close: 101}},
		// next close six trading days later
		"FAR":  {{date: monday, close: 100}, {date: monday.AddDate(0, 0, 8), close: 101}},
		"NONE": {{date: monday, close: 100}},
	}

	got := scorePredictions([]domain.Prediction{up("NEAR"), up("FAR"), up("NONE"), up("MISSING")}, closes, cal)
	require.Len(t, got, 1)
	assert.Equal(t, "NEAR", got[0].Symbol)
	assert.InDelta(t, 1.0, got[0].Accuracy, 1e-9)
}

func TestRunDeterministic(t *testing.T) {
	src := source(t, map[string][]float64{
		"AAA": {100, 102, 101, 105, 99, 103, 104, 98, 97, 110, 111, 108},
		"BBB": {50, 51, 49, 48, 52, 55, 53, 54, 56, 50, 49, 51},
	})
	e := NewEngine(src, insight.NewScoreProvider(), nil, nil, nil)
	cfg := RunConfig{
		Strategy:       cycle{},
		Start:          monday,
		End:            monday.AddDate(0, 0, 17),
		Symbols:        []string{"AAA", "BBB"},
		InitialCapital: 50_000,
		UseAI:          true,
		CommissionRate: 0.001,
	}

	a, err := e.Run(context.Background(), cfg)
	require.NoError(t, err)
	b, err := e.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Metrics, b.Metrics)
	assert.Equal(t, a.FinalCapital, b.FinalCapital)
	require.Equal(t, len(a.Trades), len(b.Trades))
	for i := range a.Trades {
		assert.Equal(t, a.Trades[i].Symbol, b.Trades[i].Symbol)
		assert.True(t, a.Trades[i].NetAmount.Equal(b.Trades[i].NetAmount))
	}
	require.Equal(t, len(a.EquityCurve), len(b.EquityCurve))
	for i := range a.EquityCurve {
		assert.True(t, a.EquityCurve[i].Total.Equal(b.EquityCurve[i].Total))
	}
}

func TestRunCancelled(t *testing.T) {
	src := source(t, map[string][]float64{"AAA": {10, 11}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewEngine(src, nil, nil, nil, nil).Run(ctx, baseConfig(&scripted{}))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWindows(t *testing.T) {
	end := monday.AddDate(0, 0, 99)
	w := Windows(monday, end, WalkForwardConfig{WindowDays: 60, StepDays: 30})
	require.Len(t, w, 3)
	assert.Equal(t, monday, w[0][0])
	assert.Equal(t, monday.AddDate(0, 0, 59), w[0][1])
	assert.Equal(t, monday.AddDate(0, 0, 30), w[1][0])
	assert.Equal(t, end, w[2][1], "last window clipped")

	for i, win := range w[:2] {
		assert.Equal(t, 59*24*time.Hour, win[1].Sub(win[0]), "window %d spans 60 days inclusive", i)
	}

	single := Windows(monday, monday.AddDate(0, 0, 10), WalkForwardConfig{})
	require.Len(t, single, 1)
	assert.Equal(t, monday.AddDate(0, 0, 10), single[0][1])

	exact := Windows(monday, monday.AddDate(0, 0, 59), WalkForwardConfig{WindowDays: 60, StepDays: 30})
	require.Len(t, exact, 1, "no window starts after the one that reaches end")
}

func TestWalkForward(t *testing.T) {
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}
	src := source(t, map[string][]float64{"AAA": closes})
	e := NewEngine(src, nil, nil, nil, nil)

	cfg := RunConfig{
		Strategy:       cycle{},
		Start:          monday,
		End:            monday.AddDate(0, 0, 97),
		Symbols:        []string{"AAA"},
		InitialCapital: 10_000,
		CommissionRate: 0.001,
	}
	res, err := e.WalkForward(context.Background(), cfg, WalkForwardConfig{WindowDays: 42, StepDays: 28})
	require.NoError(t, err)
	require.Len(t, res.Windows, 3)
	for i, w := range res.Windows {
		require.NotNil(t, w, "window %d", i)
		assert.NotEmpty(t, w.EquityCurve, "window %d", i)
	}
	assert.Equal(t, monday.AddDate(0, 0, 28), res.Windows[1].Start)
	assert.GreaterOrEqual(t, res.WorstDrawdown, 0.0)

	_, err = e.WalkForward(context.Background(), RunConfig{}, WalkForwardConfig{})
	assert.ErrorIs(t, err, ErrNoStrategy)
}
