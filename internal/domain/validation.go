package domain

import "time"

// AnalysisScore is the per-day analysis output stored next to the bars.
type AnalysisScore struct {
	Symbol         string
	Date           time.Time
	TechnicalScore float64
	SentimentScore float64
	FinalScore     float64
}

// ValidationStatus is the terminal state of a validation.
type ValidationStatus string

const (
	StatusPassed           ValidationStatus = "PASSED"
	StatusWarning          ValidationStatus = "WARNING"
	StatusFailed           ValidationStatus = "FAILED"
	StatusInsufficientData ValidationStatus = "INSUFFICIENT_DATA"
)

// ValidationCriteria holds the thresholds a run is judged against. Return,
// drawdown, win rate, AI accuracy and AI improvement are percentages.
type ValidationCriteria struct {
	MinReturn        float64 `yaml:"min_return"`
	MaxDrawdown      float64 `yaml:"max_drawdown"`
	MinSharpe        float64 `yaml:"min_sharpe"`
	MinWinRate       float64 `yaml:"min_win_rate"`
	MinTrades        int     `yaml:"min_trades"`
	MinProfitFactor  float64 `yaml:"min_profit_factor"`
	MinAIAccuracy    float64 `yaml:"min_ai_accuracy"`
	MinAIImprovement float64 `yaml:"min_ai_improvement"`
}

// Checks holds the boolean outcome of every criterion.
type Checks struct {
	Return        bool
	Drawdown      bool
	Sharpe        bool
	WinRate       bool
	Trades        bool
	ProfitFactor  bool
	AIAccuracy    bool
	AIImprovement bool
}

// Core returns the number of passed core checks (out of six).
func (c Checks) Core() int {
	return countTrue(c.Return, c.Drawdown, c.Sharpe, c.WinRate, c.Trades, c.ProfitFactor)
}

// Passed returns the number of passed checks (out of TotalChecks).
func (c Checks) Passed() int {
	return c.Core() + countTrue(c.AIAccuracy, c.AIImprovement)
}

// TotalChecks is the number of boolean checks in a validation.
const TotalChecks = 8

func countTrue(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// ValidationResult is the verdict on one strategy run.
type ValidationResult struct {
	StrategyName string
	RunID        string
	Status       ValidationStatus
	Checks       Checks
	Messages     []string
	Warnings     []string
	ValidatedAt  time.Time
}

// OverallScore returns the percentage of checks passed.
func (v *ValidationResult) OverallScore() float64 {
	return 100 * float64(v.Checks.Passed()) / TotalChecks
}

// StrategyComparison pairs the AI-assisted and traditional runs of one
// strategy over the same period and universe.
type StrategyComparison struct {
	StrategyName string
	AI           *BacktestResult
	Traditional  *BacktestResult

	ReturnImprovement   float64 // annual return, AI - traditional
	SharpeImprovement   float64
	DrawdownImprovement float64 // traditional - AI
	WinRateImprovement  float64

	TStatistic              float64
	PValue                  float64
	StatisticalSignificance bool
	AIEffectivenessScore    float64 // 0-100
}
