package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ ResultStore = (*SQLiteStore)(nil)
var _ PredictionSource = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore and PredictionSource backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id              TEXT PRIMARY KEY,
	strategy        TEXT NOT NULL,
	start_date      TEXT NOT NULL,
	end_date        TEXT NOT NULL,
	symbols         TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	final_capital   REAL NOT NULL,
	use_ai          INTEGER NOT NULL,
	commission_rate REAL NOT NULL,
	total_return    REAL NOT NULL,
	annual_return   REAL NOT NULL,
	volatility      REAL NOT NULL,
	sharpe_ratio    REAL NOT NULL,
	max_drawdown    REAL NOT NULL,
	total_trades    INTEGER NOT NULL,
	win_rate        REAL NOT NULL,
	profit_factor   REAL NOT NULL,
	ai_accuracy     REAL NOT NULL,
	trading_days    INTEGER NOT NULL,
	skipped_days    INTEGER NOT NULL,
	strategy_errors INTEGER NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS backtest_trades (
	run_id       TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	symbol       TEXT NOT NULL,
	date         TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	amount       TEXT NOT NULL,
	commission   TEXT NOT NULL,
	net_amount   TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	holding_days INTEGER NOT NULL,
	confidence   REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS equity_points (
	run_id    TEXT NOT NULL,
	date      TEXT NOT NULL,
	total     TEXT NOT NULL,
	cash      TEXT NOT NULL,
	positions TEXT NOT NULL,
	PRIMARY KEY (run_id, date)
);
CREATE TABLE IF NOT EXISTS ai_predictions (
	symbol          TEXT NOT NULL,
	date            TEXT NOT NULL,
	direction       TEXT NOT NULL,
	confidence      REAL NOT NULL,
	expected_return REAL,
	run_id          TEXT NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE TABLE IF NOT EXISTS validations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	status        TEXT NOT NULL,
	overall_score REAL NOT NULL,
	checks        TEXT NOT NULL,
	messages      TEXT NOT NULL,
	warnings      TEXT NOT NULL,
	validated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS comparisons (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy             TEXT NOT NULL,
	ai_run_id            TEXT NOT NULL,
	traditional_run_id   TEXT NOT NULL,
	return_improvement   REAL NOT NULL,
	sharpe_improvement   REAL NOT NULL,
	drawdown_improvement REAL NOT NULL,
	win_rate_improvement REAL NOT NULL,
	t_statistic          REAL,
	p_value              REAL NOT NULL,
	significant          INTEGER NOT NULL,
	effectiveness        REAL NOT NULL,
	created_at           TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS regimes (
	start_date          TEXT NOT NULL,
	end_date            TEXT NOT NULL,
	regime              TEXT NOT NULL,
	days                INTEGER NOT NULL,
	avg_price           REAL NOT NULL,
	trend_strength      REAL NOT NULL,
	momentum            REAL NOT NULL,
	period_return       REAL NOT NULL,
	avg_daily_return    REAL NOT NULL,
	volatility          REAL NOT NULL,
	max_drawdown        REAL NOT NULL,
	ai_accuracy         REAL NOT NULL,
	ai_prediction_count INTEGER NOT NULL,
	PRIMARY KEY (start_date, end_date)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// result tables and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// ResultStore implementation
// ---------------------------------------------------------------------------

// SaveBacktest inserts a run with its trades, equity curve and predictions
// in a single transaction. Predictions are keyed by (symbol, date); a later
// run overwrites an earlier prediction for the same day.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, r *domain.BacktestResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	m := r.Metrics
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO backtest_runs (
		id, strategy, start_date, end_date, symbols, initial_capital, final_capital,
		use_ai, commission_rate, total_return, annual_return, volatility, sharpe_ratio,
		max_drawdown, total_trades, win_rate, profit_factor, ai_accuracy,
		trading_days, skipped_days, strategy_errors, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StrategyName, domain.DayKey(r.Start), domain.DayKey(r.End),
		strings.Join(r.Symbols, ","), r.InitialCapital, r.FinalCapital,
		boolInt(r.UseAI), r.CommissionRate, m.TotalReturn, m.AnnualReturn, m.Volatility,
		m.SharpeRatio, m.MaxDrawdown, m.TotalTrades, m.WinRate, m.ProfitFactor, m.AIAccuracy,
		r.TradingDays, r.SkippedDays, r.StrategyErrors, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}

	for _, t := range r.Trades {
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO backtest_trades (
			run_id, seq, symbol, date, side, price, quantity, amount, commission,
			net_amount, realized_pnl, holding_days, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, t.Seq, t.Symbol, domain.DayKey(t.Date), string(t.Side), t.Price.String(),
			t.Quantity, t.Amount.String(), t.Commission.String(), t.NetAmount.String(),
			t.RealizedPnL.String(), t.HoldingDays, t.Confidence,
		)
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", t.Seq, r.ID, err)
		}
	}

	for _, p := range r.EquityCurve {
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO equity_points (run_id, date, total, cash, positions)
			VALUES (?, ?, ?, ?, ?)`,
			r.ID, domain.DayKey(p.Date), p.Total.String(), p.Cash.String(), p.Positions.String(),
		)
		if err != nil {
			return fmt.Errorf("inserting equity point %s of run %s: %w", domain.DayKey(p.Date), r.ID, err)
		}
	}

	for _, p := range r.AIPredictions {
		var expected sql.NullFloat64
		if p.ExpectedReturn != nil {
			expected = sql.NullFloat64{Float64: *p.ExpectedReturn, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO ai_predictions
			(symbol, date, direction, confidence, expected_return, run_id) VALUES (?, ?, ?, ?, ?, ?)`,
			p.Symbol, domain.DayKey(p.Date), string(p.Direction), p.Confidence, expected, r.ID,
		)
		if err != nil {
			return fmt.Errorf("inserting prediction %s/%s: %w", p.Symbol, domain.DayKey(p.Date), err)
		}
	}

	return tx.Commit()
}

// SaveValidation inserts a validation verdict.
func (s *SQLiteStore) SaveValidation(ctx context.Context, v *domain.ValidationResult) error {
	checks, err := json.Marshal(v.Checks)
	if err != nil {
		return err
	}
	messages, err := json.Marshal(nonNil(v.Messages))
	if err != nil {
		return err
	}
	warnings, err := json.Marshal(nonNil(v.Warnings))
	if err != nil {
		return err
	}

	validatedAt := v.ValidatedAt
	if validatedAt.IsZero() {
		validatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO validations
		(run_id, strategy, status, overall_score, checks, messages, warnings, validated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.RunID, v.StrategyName, string(v.Status), v.OverallScore(),
		string(checks), string(messages), string(warnings), validatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting validation for %s: %w", v.StrategyName, err)
	}
	return nil
}

// SaveComparison inserts an AI vs traditional comparison.
func (s *SQLiteStore) SaveComparison(ctx context.Context, c *domain.StrategyComparison) error {
	if c.AI == nil || c.Traditional == nil {
		return fmt.Errorf("saving comparison for %s: missing leg", c.StrategyName)
	}
	var t sql.NullFloat64
	if !math.IsInf(c.TStatistic, 0) && !math.IsNaN(c.TStatistic) {
		t = sql.NullFloat64{Float64: c.TStatistic, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO comparisons (
		strategy, ai_run_id, traditional_run_id, return_improvement, sharpe_improvement,
		drawdown_improvement, win_rate_improvement, t_statistic, p_value, significant,
		effectiveness, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.StrategyName, c.AI.ID, c.Traditional.ID, c.ReturnImprovement, c.SharpeImprovement,
		c.DrawdownImprovement, c.WinRateImprovement, t, c.PValue, boolInt(c.StatisticalSignificance),
		c.AIEffectivenessScore, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting comparison for %s: %w", c.StrategyName, err)
	}
	return nil
}

// SaveRegimes replaces any stored segment with the same bounds.
func (s *SQLiteStore) SaveRegimes(ctx context.Context, regimes []domain.MarketRegimeAnalysis) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range regimes {
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO regimes (
			start_date, end_date, regime, days, avg_price, trend_strength, momentum,
			period_return, avg_daily_return, volatility, max_drawdown, ai_accuracy, ai_prediction_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			domain.DayKey(r.Start), domain.DayKey(r.End), string(r.Regime), r.Days,
			r.Characteristics.AvgPrice, r.Characteristics.TrendStrength, r.Characteristics.Momentum,
			r.PeriodReturn, r.AvgDailyReturn, r.Volatility, r.MaxDrawdown, r.AIAccuracy, r.AIPredictionCount,
		)
		if err != nil {
			return fmt.Errorf("inserting regime %s..%s: %w", domain.DayKey(r.Start), domain.DayKey(r.End), err)
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// ListPredictions returns stored predictions within [start, end].
func (s *SQLiteStore) ListPredictions(ctx context.Context, start, end time.Time, symbols []string) ([]domain.Prediction, error) {
	query := `SELECT symbol, date, direction, confidence, expected_return FROM ai_predictions
		WHERE date >= ? AND date <= ?`
	args := []any{domain.DayKey(start), domain.DayKey(end)}
	if len(symbols) > 0 {
		query += ` AND symbol IN (?` + strings.Repeat(", ?", len(symbols)-1) + `)`
		for _, sym := range symbols {
			args = append(args, strings.ToUpper(sym))
		}
	}
	query += ` ORDER BY date, symbol`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		var (
			p         domain.Prediction
			date, dir string
			expected  sql.NullFloat64
		)
		if err := rows.Scan(&p.Symbol, &date, &dir, &p.Confidence, &expected); err != nil {
			return nil, err
		}
		p.Date, err = time.Parse(domain.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parsing prediction date %q: %w", date, err)
		}
		p.Direction = domain.Direction(dir)
		if expected.Valid {
			v := expected.Float64
			p.ExpectedReturn = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RunSummary is a compact view of a stored run.
type RunSummary struct {
	ID           string
	Strategy     string
	Start        time.Time
	End          time.Time
	UseAI        bool
	FinalCapital float64
	AnnualReturn float64
	SharpeRatio  float64
	MaxDrawdown  float64
	TotalTrades  int
}

// ListRuns returns the most recently saved runs, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, strategy, start_date, end_date, use_ai,
		final_capital, annual_return, sharpe_ratio, max_drawdown, total_trades
		FROM backtest_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r          RunSummary
			start, end string
			useAI      int
		)
		if err := rows.Scan(&r.ID, &r.Strategy, &start, &end, &useAI,
			&r.FinalCapital, &r.AnnualReturn, &r.SharpeRatio, &r.MaxDrawdown, &r.TotalTrades); err != nil {
			return nil, err
		}
		r.Start, _ = time.Parse(domain.DateLayout, start)
		r.End, _ = time.Parse(domain.DateLayout, end)
		r.UseAI = useAI != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// EquityCurve returns the stored equity curve of a run ordered by date.
func (s *SQLiteStore) EquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, total, cash, positions FROM equity_points
		WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading equity curve of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.EquityPoint
	for rows.Next() {
		var date, total, cash, positions string
		if err := rows.Scan(&date, &total, &cash, &positions); err != nil {
			return nil, err
		}
		var p domain.EquityPoint
		if p.Date, err = time.Parse(domain.DateLayout, date); err != nil {
			return nil, err
		}
		if p.Total, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		if p.Cash, err = decimal.NewFromString(cash); err != nil {
			return nil, err
		}
		if p.Positions, err = decimal.NewFromString(positions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
