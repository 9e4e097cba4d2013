// Package domain defines the value types shared across the backtesting,
// validation and historical analysis packages.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies the exchange group a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// DateLayout is the canonical day key used for lookups and storage.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey returns the canonical YYYY-MM-DD key for t.
func DayKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a daily OHLCV bar as persisted by the bar store.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// DailySnapshot is one symbol on one trading day, together with the derived
// scores supplied by the data source. Snapshots are immutable values.
type DailySnapshot struct {
	Symbol string
	Date   time.Time

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Price  float64 // execution and valuation price; equals Close
	Volume int64

	// Derived indicators; zero when the lookback is too short.
	SMAShort float64
	SMALong  float64
	RSI      float64
	Momentum float64 // percent change over the momentum window

	// Analysis scores on a 0-100 scale; zero when not available.
	TechnicalScore float64
	SentimentScore float64
	FinalScore     float64
}

// ErrInvalidSnapshot is returned by DailySnapshot.Validate.
var ErrInvalidSnapshot = errors.New("invalid daily snapshot")

// Validate checks the fields every consumer relies on.
func (s DailySnapshot) Validate() error {
	switch {
	case strings.TrimSpace(s.Symbol) == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidSnapshot)
	case s.Date.IsZero():
		return fmt.Errorf("%w: %s has no date", ErrInvalidSnapshot, s.Symbol)
	case s.Price <= 0:
		return fmt.Errorf("%w: %s on %s has price %v", ErrInvalidSnapshot, s.Symbol, DayKey(s.Date), s.Price)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// Action is the trading decision carried by a Signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is a strategy's decision for a single snapshot.
type Signal struct {
	Action     Action
	Confidence float64 // 0-100
	Reason     string
}

// Hold returns a HOLD signal with the given reason.
func Hold(reason string) Signal {
	return Signal{Action: ActionHold, Reason: reason}
}

// Normalized clamps Confidence into [0, 100] and maps unknown actions to HOLD.
func (s Signal) Normalized() Signal {
	switch s.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		s.Action = ActionHold
	}
	if s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 100 {
		s.Confidence = 100
	}
	return s
}

// ---------------------------------------------------------------------------
// Ledger records
// ---------------------------------------------------------------------------

// Side is the direction of an executed trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is the quantity held in one symbol during a simulation.
type Position struct {
	Symbol    string
	Quantity  int64
	CostBasis decimal.Decimal // total cash spent, commissions included
	LastPrice decimal.Decimal
	OpenedAt  time.Time
}

// Trade records one executed order. Trades are immutable once appended.
type Trade struct {
	Seq      int
	Symbol   string
	Date     time.Time
	Side     Side
	Price    decimal.Decimal
	Quantity int64

	Amount     decimal.Decimal // price * quantity
	Commission decimal.Decimal
	NetAmount  decimal.Decimal // amount +/- commission
	CashDelta  decimal.Decimal // signed change applied to cash

	RealizedPnL decimal.Decimal // SELL only
	HoldingDays int             // SELL only
	Confidence  float64
}

// EquityPoint is the end-of-day valuation of the portfolio.
type EquityPoint struct {
	Date      time.Time
	Total     decimal.Decimal
	Cash      decimal.Decimal
	Positions decimal.Decimal
}

// ---------------------------------------------------------------------------
// AI insights
// ---------------------------------------------------------------------------

// Direction is a predicted or realized price move.
type Direction string

const (
	DirectionUp      Direction = "UP"
	DirectionDown    Direction = "DOWN"
	DirectionNeutral Direction = "NEUTRAL"
)

// DirectionOf maps a signed change to a Direction.
func DirectionOf(change float64) Direction {
	switch {
	case change > 0:
		return DirectionUp
	case change < 0:
		return DirectionDown
	default:
		return DirectionNeutral
	}
}

// Prediction is an AI forecast for the next trading day of one symbol.
type Prediction struct {
	Symbol         string
	Date           time.Time
	Direction      Direction
	Confidence     float64  // 0-1
	ExpectedReturn *float64 // fractional next-day change, optional
}

// Outcome is the realized move following a prediction.
type Outcome struct {
	Direction Direction
	Change    float64 // fractional change
}

// Regime labels a market condition.
type Regime string

const (
	RegimeBull     Regime = "BULL_MARKET"
	RegimeBear     Regime = "BEAR_MARKET"
	RegimeSideways Regime = "SIDEWAYS"
)

// RegimeObservation is a regime label reported by the insight producer for a day.
type RegimeObservation struct {
	Date       time.Time
	Regime     Regime
	Confidence float64
}

// InsightBundle is the insight producer's output for one trading day.
type InsightBundle struct {
	Date             time.Time
	Regime           Regime
	RegimeConfidence float64
	Predictions      map[string]Prediction
}

// For returns the prediction for symbol. A nil bundle yields no prediction.
func (b *InsightBundle) For(symbol string) (Prediction, bool) {
	if b == nil || b.Predictions == nil {
		return Prediction{}, false
	}
	p, ok := b.Predictions[symbol]
	return p, ok
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// PerformanceMetrics summarises a completed run. Every field defaults to zero
// when there is not enough data to compute it.
type PerformanceMetrics struct {
	TotalReturn        float64 // final - initial capital
	TotalReturnPct     float64
	AnnualReturn       float64 // percent
	Volatility         float64 // annualized, percent
	SharpeRatio        float64
	MaxDrawdown        float64 // percent
	RiskAdjustedReturn float64

	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	WinRate          float64 // percent of closed trades
	ProfitFactor     float64
	AvgWin           float64
	AvgLoss          float64
	LargestWin       float64
	LargestLoss      float64
	AvgTradeDuration float64 // days

	AIAccuracy              float64 // percent
	AIConfidenceCorrelation float64
	AIPredictionCount       int
}

// BacktestResult is the full output of one simulation run.
type BacktestResult struct {
	ID             string
	StrategyName   string
	Start          time.Time
	End            time.Time
	Symbols        []string
	InitialCapital float64
	FinalCapital   float64
	UseAI          bool
	CommissionRate float64

	Metrics       PerformanceMetrics
	Trades        []Trade
	EquityCurve   []EquityPoint
	AIPredictions []Prediction
	MarketRegimes []RegimeObservation

	TradingDays    int // weekdays in range
	SkippedDays    int // weekdays without any data
	StrategyErrors int
}

// TotalReturnPct returns the run's return relative to its initial capital.
func (r *BacktestResult) TotalReturnPct() float64 {
	if r.InitialCapital == 0 {
		return 0
	}
	return (r.FinalCapital - r.InitialCapital) / r.InitialCapital * 100
}

// RegimeCharacteristics describes the price behaviour inside a regime segment.
type RegimeCharacteristics struct {
	AvgPrice         float64
	PriceVolatility  float64 // coefficient of variation, percent
	AvgVolume        float64
	VolumeVolatility float64 // coefficient of variation, percent
	TrendStrength    float64 // R^2 of price against time, percent
	Momentum         float64 // percent change over the last 20 samples
}

// MarketRegimeAnalysis is one contiguous, labelled segment of history.
type MarketRegimeAnalysis struct {
	Start           time.Time
	End             time.Time
	Regime          Regime
	Days            int
	Characteristics RegimeCharacteristics

	PeriodReturn   float64 // percent, first to last sample
	AvgDailyReturn float64 // percent
	Volatility     float64 // annualized, percent
	MaxDrawdown    float64 // percent

	AIAccuracy        float64 // percent
	AIPredictionCount int
}
