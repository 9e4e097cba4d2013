// Package validate judges backtest results against validation criteria and
// compares AI-assisted runs with their traditional counterparts.
package validate

import (
	"fmt"
	"log/slog"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/telemetry"
	"strategylab/internal/util"
)

// MinTradesForVerdict is the trade count below which a run is inconclusive.
const MinTradesForVerdict = 10

// DefaultCriteria returns the stock validation thresholds.
func DefaultCriteria() domain.ValidationCriteria {
	return domain.ValidationCriteria{
		MinReturn:        5,
		MaxDrawdown:      20,
		MinSharpe:        1.0,
		MinWinRate:       45,
		MinTrades:        50,
		MinProfitFactor:  1.2,
		MinAIAccuracy:    60,
		MinAIImprovement: 2,
	}
}

// Validator validates runs and drives AI vs traditional comparisons on an
// engine.
type Validator struct {
	engine   *backtest.Engine
	criteria domain.ValidationCriteria
	metrics  *telemetry.Recorder
	log      *slog.Logger

	// Concurrency bounds the runs executed at once by the batch operations.
	Concurrency int

	now func() time.Time
}

// NewValidator creates a Validator. engine may be nil when only Validate
// and ValidateComparison are used.
func NewValidator(engine *backtest.Engine, criteria domain.ValidationCriteria, metrics *telemetry.Recorder, log *slog.Logger) *Validator {
	return &Validator{
		engine:      engine,
		criteria:    criteria,
		metrics:     metrics,
		log:         util.OrDefault(log),
		Concurrency: 4,
		now:         time.Now,
	}
}

// Criteria returns the thresholds the validator applies.
func (v *Validator) Criteria() domain.ValidationCriteria {
	return v.criteria
}

// Validate judges res with the validator's criteria.
func (v *Validator) Validate(name string, res *domain.BacktestResult) *domain.ValidationResult {
	out := Evaluate(name, res, v.criteria)
	out.ValidatedAt = v.now().UTC()
	v.record(out)
	return out
}

// ValidateComparison validates the AI leg of cmp and adds the AI
// improvement check.
func (v *Validator) ValidateComparison(cmp *domain.StrategyComparison) *domain.ValidationResult {
	out := EvaluateComparison(cmp, v.criteria)
	out.ValidatedAt = v.now().UTC()
	v.record(out)
	return out
}

func (v *Validator) record(out *domain.ValidationResult) {
	v.metrics.Validation(string(out.Status))
	v.log.Info("strategy validated",
		"strategy", out.StrategyName,
		"run", out.RunID,
		"status", out.Status,
		"score", out.OverallScore(),
	)
}

// Evaluate runs the criteria checks against res. Runs with fewer than
// MinTradesForVerdict trades are INSUFFICIENT_DATA whatever their metrics.
// The AI improvement check stays false; it needs a comparison.
func Evaluate(name string, res *domain.BacktestResult, c domain.ValidationCriteria) *domain.ValidationResult {
	out := &domain.ValidationResult{StrategyName: name}
	if res == nil {
		out.Status = domain.StatusInsufficientData
		out.Warnings = append(out.Warnings, "no backtest result")
		return out
	}
	out.RunID = res.ID
	m := res.Metrics

	check := func(ok bool, format string, args ...any) bool {
		mark := "FAIL"
		if ok {
			mark = "PASS"
		}
		out.Messages = append(out.Messages, mark+" "+fmt.Sprintf(format, args...))
		return ok
	}

	ch := &out.Checks
	ch.Return = check(m.AnnualReturn >= c.MinReturn,
		"annual return %.2f%% (min %.2f%%)", m.AnnualReturn, c.MinReturn)
	ch.Drawdown = check(m.MaxDrawdown <= c.MaxDrawdown,
		"max drawdown %.2f%% (max %.2f%%)", m.MaxDrawdown, c.MaxDrawdown)
	ch.Sharpe = check(m.SharpeRatio >= c.MinSharpe,
		"sharpe ratio %.2f (min %.2f)", m.SharpeRatio, c.MinSharpe)
	ch.WinRate = check(m.WinRate >= c.MinWinRate,
		"win rate %.2f%% (min %.2f%%)", m.WinRate, c.MinWinRate)
	ch.Trades = check(m.TotalTrades >= c.MinTrades,
		"total trades %d (min %d)", m.TotalTrades, c.MinTrades)
	ch.ProfitFactor = check(m.ProfitFactor >= c.MinProfitFactor,
		"profit factor %.2f (min %.2f)", m.ProfitFactor, c.MinProfitFactor)

	if m.AIAccuracy == 0 {
		ch.AIAccuracy = true
		out.Messages = append(out.Messages, "INFO ai accuracy not applicable")
	} else {
		ch.AIAccuracy = check(m.AIAccuracy >= c.MinAIAccuracy,
			"ai accuracy %.2f%% (min %.2f%%)", m.AIAccuracy, c.MinAIAccuracy)
	}

	core := ch.Core()
	switch {
	case m.TotalTrades < MinTradesForVerdict:
		out.Status = domain.StatusInsufficientData
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("only %d trades, at least %d needed for a verdict", m.TotalTrades, MinTradesForVerdict))
	case core == 6 && ch.AIAccuracy:
		out.Status = domain.StatusPassed
	case core == 6:
		out.Status = domain.StatusWarning
		out.Warnings = append(out.Warnings, "ai accuracy below threshold")
	case core >= 4:
		out.Status = domain.StatusWarning
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d of 6 core criteria not met", 6-core))
	default:
		out.Status = domain.StatusFailed
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d of 6 core criteria not met", 6-core))
	}
	return out
}

// EvaluateComparison evaluates the AI leg of cmp and sets the AI improvement
// check from its return improvement.
func EvaluateComparison(cmp *domain.StrategyComparison, c domain.ValidationCriteria) *domain.ValidationResult {
	if cmp == nil {
		return Evaluate("", nil, c)
	}
	out := Evaluate(cmp.StrategyName, cmp.AI, c)
	if cmp.AI == nil {
		return out
	}
	ok := cmp.ReturnImprovement >= c.MinAIImprovement
	out.Checks.AIImprovement = ok
	mark := "FAIL"
	if ok {
		mark = "PASS"
	}
	out.Messages = append(out.Messages, fmt.Sprintf("%s ai return improvement %+.2f%% (min %.2f%%)",
		mark, cmp.ReturnImprovement, c.MinAIImprovement))
	return out
}
