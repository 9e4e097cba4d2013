// Package store defines storage interfaces for market data and simulation
// results, with Parquet and SQLite implementations.
package store

import (
	"context"
	"time"

	"strategylab/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// ScoreStore persists and retrieves daily analysis scores.
type ScoreStore interface {
	// WriteScores persists a batch of scores for the given market.
	WriteScores(ctx context.Context, market string, scores []domain.AnalysisScore) error

	// ReadScores returns scores for the given symbol within [start, end].
	ReadScores(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.AnalysisScore, error)
}

// ResultStore receives completed simulation, validation and regime results.
type ResultStore interface {
	// SaveBacktest persists a run with its trades, equity curve and AI
	// predictions.
	SaveBacktest(ctx context.Context, result *domain.BacktestResult) error

	// SaveValidation persists a validation verdict.
	SaveValidation(ctx context.Context, v *domain.ValidationResult) error

	// SaveComparison persists an AI vs traditional comparison. Both legs
	// must have been saved with SaveBacktest first.
	SaveComparison(ctx context.Context, c *domain.StrategyComparison) error

	// SaveRegimes persists a regime segmentation.
	SaveRegimes(ctx context.Context, regimes []domain.MarketRegimeAnalysis) error
}

// PredictionSource lists stored AI predictions.
type PredictionSource interface {
	// ListPredictions returns predictions dated within [start, end], limited
	// to symbols when it is non-empty, ordered by date then symbol.
	ListPredictions(ctx context.Context, start, end time.Time, symbols []string) ([]domain.Prediction, error)
}
