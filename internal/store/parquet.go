package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"strategylab/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ ScoreStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and ScoreStore using Parquet files on disk,
// and exports run results for offline analysis.
type ParquetStore struct {
	DataDir string
	Market  string // market used by WriteBars
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Market: string(domain.MarketUS)}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// ScoreRecord is the Parquet schema for daily analysis scores.
type ScoreRecord struct {
	Symbol         string  `parquet:"symbol"`
	Timestamp      int64   `parquet:"timestamp,timestamp(millisecond)"`
	TechnicalScore float64 `parquet:"technical_score"`
	SentimentScore float64 `parquet:"sentiment_score"`
	FinalScore     float64 `parquet:"final_score"`
}

// EquityRecord is the Parquet schema for an exported equity curve.
type EquityRecord struct {
	RunID     string  `parquet:"run_id"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Total     float64 `parquet:"total"`
	Cash      float64 `parquet:"cash"`
	Positions float64 `parquet:"positions"`
}

// TradeRecord is the Parquet schema for exported simulated trades.
type TradeRecord struct {
	RunID       string  `parquet:"run_id"`
	Seq         int64   `parquet:"seq"`
	Symbol      string  `parquet:"symbol"`
	Timestamp   int64   `parquet:"timestamp,timestamp(millisecond)"`
	Side        string  `parquet:"side"`
	Price       float64 `parquet:"price"`
	Quantity    int64   `parquet:"quantity"`
	Commission  float64 `parquet:"commission"`
	NetAmount   float64 `parquet:"net_amount"`
	RealizedPnL float64 `parquet:"realized_pnl"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year
// under the store's default market. Each symbol+year combination produces a
// separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.WriteBarsForMarket(bars, s.Market)
}

// WriteBarsForMarket writes bars to Parquet grouped by symbol and year under
// the given market directory.
func (s *ParquetStore) WriteBarsForMarket(bars []domain.Bar, market string) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		k := key{symbol: sym, year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     sym,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, time.Date(k.year, 1, 1, 0, 0, 0, 0, time.UTC))

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeByTimestamp(existing, records, func(r BarRecord) int64 { return r.Timestamp })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range. Missing year files are skipped.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.barPath(symbol, market, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if inRange(ts, start, end) {
				bars = append(bars, domain.Bar{
					Symbol:     r.Symbol,
					Timestamp:  ts,
					Open:       r.Open,
					High:       r.High,
					Low:        r.Low,
					Close:      r.Close,
					Volume:     r.Volume,
					TradeCount: r.TradeCount,
					VWAP:       r.VWAP,
				})
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// ScoreStore implementation
// ---------------------------------------------------------------------------

// WriteScores merges scores into one file per symbol at:
//
//	<DataDir>/<market>/scores/<SYMBOL>.parquet
func (s *ParquetStore) WriteScores(_ context.Context, market string, scores []domain.AnalysisScore) error {
	groups := make(map[string][]ScoreRecord)
	for _, sc := range scores {
		sym := strings.ToUpper(sc.Symbol)
		groups[sym] = append(groups[sym], ScoreRecord{
			Symbol:         sym,
			Timestamp:      sc.Date.UnixMilli(),
			TechnicalScore: sc.TechnicalScore,
			SentimentScore: sc.SentimentScore,
			FinalScore:     sc.FinalScore,
		})
	}

	for sym, records := range groups {
		path := s.scorePath(sym, market)
		existing, _ := readParquetFile[ScoreRecord](path)
		merged := mergeByTimestamp(existing, records, func(r ScoreRecord) int64 { return r.Timestamp })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing scores for %s: %w", sym, err)
		}
	}
	return nil
}

// ReadScores returns the stored scores of symbol within [start, end]. A
// symbol without a score file yields no scores and no error.
func (s *ParquetStore) ReadScores(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.AnalysisScore, error) {
	path := s.scorePath(symbol, market)
	records, err := readParquetFile[ScoreRecord](path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading scores for %s: %w", symbol, err)
	}

	var out []domain.AnalysisScore
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if !inRange(ts, start, end) {
			continue
		}
		out = append(out, domain.AnalysisScore{
			Symbol:         r.Symbol,
			Date:           ts,
			TechnicalScore: r.TechnicalScore,
			SentimentScore: r.SentimentScore,
			FinalScore:     r.FinalScore,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Result export
// ---------------------------------------------------------------------------

// ExportRun writes the equity curve and trades of a run to
// <DataDir>/results/<runID>/{equity,trades}.parquet.
func (s *ParquetStore) ExportRun(_ context.Context, r *domain.BacktestResult) error {
	if r.ID == "" {
		return fmt.Errorf("exporting run: empty run id")
	}

	equity := make([]EquityRecord, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		equity[i] = EquityRecord{
			RunID:     r.ID,
			Timestamp: p.Date.UnixMilli(),
			Total:     p.Total.InexactFloat64(),
			Cash:      p.Cash.InexactFloat64(),
			Positions: p.Positions.InexactFloat64(),
		}
	}
	if err := writeParquetFile(s.resultPath(r.ID, "equity"), equity); err != nil {
		return fmt.Errorf("writing equity curve for %s: %w", r.ID, err)
	}

	trades := make([]TradeRecord, len(r.Trades))
	for i, t := range r.Trades {
		trades[i] = TradeRecord{
			RunID:       r.ID,
			Seq:         int64(t.Seq),
			Symbol:      t.Symbol,
			Timestamp:   t.Date.UnixMilli(),
			Side:        string(t.Side),
			Price:       t.Price.InexactFloat64(),
			Quantity:    t.Quantity,
			Commission:  t.Commission.InexactFloat64(),
			NetAmount:   t.NetAmount.InexactFloat64(),
			RealizedPnL: t.RealizedPnL.InexactFloat64(),
		}
	}
	if err := writeParquetFile(s.resultPath(r.ID, "trades"), trades); err != nil {
		return fmt.Errorf("writing trades for %s: %w", r.ID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, t time.Time) string {
	year := fmt.Sprintf("%d", t.Year())
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), year+".parquet")
}

// scorePath returns the filesystem path for a score Parquet file.
// Layout: <dataDir>/<market>/scores/<SYMBOL>.parquet
func (s *ParquetStore) scorePath(symbol, market string) string {
	return filepath.Join(s.DataDir, market, "scores", strings.ToUpper(symbol)+".parquet")
}

// resultPath returns the filesystem path for an exported run file.
// Layout: <dataDir>/results/<runID>/<name>.parquet
func (s *ParquetStore) resultPath(runID, name string) string {
	return filepath.Join(s.DataDir, "results", runID, name+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeByTimestamp deduplicates records by timestamp, preferring incoming
// records over existing ones. Results are sorted by timestamp.
func mergeByTimestamp[T any](existing, incoming []T, ts func(T) int64) []T {
	seen := make(map[int64]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[ts(r)] = r
	}
	for _, r := range incoming {
		seen[ts(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return ts(merged[i]) < ts(merged[j])
	})
	return merged
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}
