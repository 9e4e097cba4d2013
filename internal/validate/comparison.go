package validate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/perf"
	"strategylab/internal/stats"
	"strategylab/internal/strategy"
)

// Significance test parameters.
const (
	MinReturnSamples   = 30
	SignificanceLevel  = 0.05
	significanceWeight = 0.10
)

// effectivenessTerms maps each improvement to the value that earns a full
// score and its weight.
var effectivenessTerms = [...]struct {
	scale  float64
	weight float64
}{
	{10, 0.30},  // return, percent
	{0.5, 0.25}, // sharpe
	{5, 0.20},   // drawdown, percent
	{10, 0.15},  // win rate, percent
}

// ErrNoEngine is returned by operations that need to run backtests on a
// Validator built without an engine.
var ErrNoEngine = errors.New("validator has no backtest engine")

// Request describes the period, universe and money settings shared by the
// runs of a comparison or batch.
type Request struct {
	Start          time.Time
	End            time.Time
	Symbols        []string
	InitialCapital float64
	CommissionRate float64
	UseAI          bool // batch validation only; comparisons run both legs
}

func (r Request) runConfig(s strategy.Strategy, ai bool) backtest.RunConfig {
	return backtest.RunConfig{
		Strategy:       s,
		Start:          r.Start,
		End:            r.End,
		Symbols:        r.Symbols,
		InitialCapital: r.InitialCapital,
		UseAI:          ai,
		CommissionRate: r.CommissionRate,
	}
}

// Compare backtests s with and without AI over the same request and
// compares the two runs. The legs share no state and run concurrently.
func (v *Validator) Compare(ctx context.Context, s strategy.Strategy, req Request) (*domain.StrategyComparison, error) {
	if v.engine == nil {
		return nil, ErrNoEngine
	}
	if s == nil {
		return nil, backtest.ErrNoStrategy
	}

	var ai, trad *domain.BacktestResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := v.engine.Run(gctx, req.runConfig(s, true))
		if err != nil {
			return fmt.Errorf("ai run: %w", err)
		}
		ai = r
		return nil
	})
	g.Go(func() error {
		r, err := v.engine.Run(gctx, req.runConfig(s, false))
		if err != nil {
			return fmt.Errorf("traditional run: %w", err)
		}
		trad = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("comparing %s: %w", s.Name(), err)
	}

	cmp := Comparison(s.Name(), ai, trad)
	v.log.Info("ai vs traditional compared",
		"strategy", cmp.StrategyName,
		"return_improvement", cmp.ReturnImprovement,
		"p_value", cmp.PValue,
		"significant", cmp.StatisticalSignificance,
		"effectiveness", cmp.AIEffectivenessScore,
	)
	return cmp, nil
}

// Comparison derives the improvement deltas, the significance test and the
// effectiveness score of an AI run against a traditional run.
func Comparison(name string, ai, trad *domain.BacktestResult) *domain.StrategyComparison {
	cmp := &domain.StrategyComparison{
		StrategyName: name,
		AI:           ai,
		Traditional:  trad,
		PValue:       1,
	}
	if ai == nil || trad == nil {
		return cmp
	}
	am, tm := ai.Metrics, trad.Metrics
	cmp.ReturnImprovement = am.AnnualReturn - tm.AnnualReturn
	cmp.SharpeImprovement = am.SharpeRatio - tm.SharpeRatio
	cmp.DrawdownImprovement = tm.MaxDrawdown - am.MaxDrawdown
	cmp.WinRateImprovement = am.WinRate - tm.WinRate

	aiReturns := perf.DailyReturns(ai.EquityCurve)
	tradReturns := perf.DailyReturns(trad.EquityCurve)
	if len(aiReturns) >= MinReturnSamples && len(tradReturns) >= MinReturnSamples {
		t := stats.WelchTTest(aiReturns, tradReturns)
		cmp.TStatistic = t.T
		cmp.PValue = t.PValue
		cmp.StatisticalSignificance = t.PValue < SignificanceLevel && t.MeanA > t.MeanB
	}

	cmp.AIEffectivenessScore = Effectiveness(cmp)
	return cmp
}

// Effectiveness scores cmp on 0-100. Each positive improvement contributes
// its clamped ratio to the full-score value, weighted; significance adds a
// flat bonus. The sum is divided by the weights that contributed.
func Effectiveness(cmp *domain.StrategyComparison) float64 {
	improvements := [...]float64{
		cmp.ReturnImprovement,
		cmp.SharpeImprovement,
		cmp.DrawdownImprovement,
		cmp.WinRateImprovement,
	}
	var score, weights float64
	for i, imp := range improvements {
		if imp <= 0 {
			continue
		}
		term := effectivenessTerms[i]
		score += stats.Clamp(imp/term.scale, 0, 1) * 100 * term.weight
		weights += term.weight
	}
	if cmp.StatisticalSignificance {
		score += 100 * significanceWeight
		weights += significanceWeight
	}
	if weights == 0 {
		return 0
	}
	return score / weights
}
