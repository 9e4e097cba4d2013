package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	bp := ps.barPath("aapl", "us", ts)

	wantBarPath := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}

	sp := ps.scorePath("005930", "cn")
	wantScorePath := filepath.Join("/data", "cn", "scores", "005930.parquet")
	if sp != wantScorePath {
		t.Errorf("scorePath mismatch:\n  got  %s\n  want %s", sp, wantScorePath)
	}

	rp := ps.resultPath("run-1", "equity")
	if !strings.HasSuffix(rp, filepath.Join("results", "run-1", "equity.parquet")) {
		t.Errorf("resultPath = %s, want results/run-1/equity.parquet suffix", rp)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      185.0, High: 186.5, Low: 184.0, Close: 185.5,
			Volume: 50000000, TradeCount: 500000, VWAP: 185.25,
		},
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:      185.5, High: 187.0, Low: 185.0, Close: 186.0,
			Volume: 45000000, TradeCount: 450000, VWAP: 185.75,
		},
	}

	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 {
		t.Errorf("first bar Close = %v, want 185.5", got[0].Close)
	}
	if got[1].Close != 186.0 {
		t.Errorf("second bar Close = %v, want 186.0", got[1].Close)
	}
	if !got[0].Timestamp.Equal(bars[0].Timestamp) {
		t.Errorf("first bar Timestamp = %v, want %v", got[0].Timestamp, bars[0].Timestamp)
	}

	// Narrow range excludes the first bar.
	got, err = ps.ReadBars(ctx, "AAPL", "us", bars[1].Timestamp, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("ReadBars narrow range returned %d bars, want 1", len(got))
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	first := domain.Bar{Symbol: "MSFT", Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Close: 403.0}
	second := domain.Bar{Symbol: "MSFT", Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Close: 408.0}
	revised := first
	revised.Close = 404.0

	for _, batch := range [][]domain.Bar{{first}, {second}, {revised}} {
		if err := ps.WriteBars(ctx, batch); err != nil {
			t.Fatalf("WriteBars: %v", err)
		}
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "MSFT", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404.0 {
		t.Errorf("merged bar Close = %v, want 404 (newer write wins)", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185.5},
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 140.5},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}

	none, err := ps.ListSymbols(ctx, "cn")
	if err != nil || len(none) != 0 {
		t.Errorf("ListSymbols(cn) = %v, %v; want empty, nil", none, err)
	}
}

func TestParquetStoreScores(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	day := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	scores := []domain.AnalysisScore{
		{Symbol: "AAPL", Date: day, TechnicalScore: 61, SentimentScore: 72, FinalScore: 66},
		{Symbol: "AAPL", Date: day.AddDate(0, 0, 1), TechnicalScore: 40, SentimentScore: 30, FinalScore: 35},
	}
	if err := ps.WriteScores(ctx, "us", scores); err != nil {
		t.Fatalf("WriteScores: %v", err)
	}

	got, err := ps.ReadScores(ctx, "AAPL", "us", day, day)
	if err != nil {
		t.Fatalf("ReadScores: %v", err)
	}
	if len(got) != 1 || got[0].FinalScore != 66 {
		t.Fatalf("ReadScores = %+v, want one score with FinalScore 66", got)
	}

	missing, err := ps.ReadScores(ctx, "MSFT", "us", day, day)
	if err != nil || missing != nil {
		t.Errorf("ReadScores for missing symbol = %v, %v; want nil, nil", missing, err)
	}
}

func TestParquetStoreExportRun(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	r := sampleRun()

	if err := ps.ExportRun(context.Background(), r); err != nil {
		t.Fatalf("ExportRun: %v", err)
	}
	equity, err := readParquetFile[EquityRecord](ps.resultPath(r.ID, "equity"))
	if err != nil {
		t.Fatalf("reading exported equity: %v", err)
	}
	if len(equity) != 2 || equity[1].Total != 1000100 {
		t.Errorf("exported equity = %+v, want 2 points ending at 1000100", equity)
	}
	trades, err := readParquetFile[TradeRecord](ps.resultPath(r.ID, "trades"))
	if err != nil {
		t.Fatalf("reading exported trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Side != "BUY" {
		t.Errorf("exported trades = %+v, want one BUY", trades)
	}

	if err := ps.ExportRun(context.Background(), &domain.BacktestResult{}); err == nil {
		t.Error("ExportRun without run id returned nil error")
	}
}

func sampleRun() *domain.BacktestResult {
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	exp := 0.012
	return &domain.BacktestResult{
		ID:             "run-1",
		StrategyName:   "trend",
		Start:          d1,
		End:            d2,
		Symbols:        []string{"AAPL"},
		InitialCapital: 1_000_000,
		FinalCapital:   1_000_100,
		UseAI:          true,
		CommissionRate: 0.0015,
		Trades: []domain.Trade{{
			Seq: 1, Symbol: "AAPL", Date: d1, Side: domain.SideBuy,
			Price: decimal.NewFromInt(100), Quantity: 10,
			Amount: decimal.NewFromInt(1000), Commission: decimal.RequireFromString("1.5"),
			NetAmount: decimal.RequireFromString("1001.5"), CashDelta: decimal.RequireFromString("-1001.5"),
		}},
		EquityCurve: []domain.EquityPoint{
			{Date: d1, Total: decimal.RequireFromString("999998.5"), Cash: decimal.RequireFromString("998998.5"), Positions: decimal.NewFromInt(1000)},
			{Date: d2, Total: decimal.NewFromInt(1000100), Cash: decimal.RequireFromString("998998.5"), Positions: decimal.RequireFromString("1101.5")},
		},
		AIPredictions: []domain.Prediction{
			{Symbol: "AAPL", Date: d1, Direction: domain.DirectionUp, Confidence: 0.8, ExpectedReturn: &exp},
			{Symbol: "MSFT", Date: d2, Direction: domain.DirectionDown, Confidence: 0.6},
		},
	}
}

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return s
}

func TestSQLiteStoreOpen(t *testing.T) {
	s := openTestDB(t)
	if err := s.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
}

func TestSQLiteStoreSaveBacktest(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	r := sampleRun()

	if err := s.SaveBacktest(ctx, r); err != nil {
		t.Fatalf("SaveBacktest: %v", err)
	}

	var trades int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM backtest_trades WHERE run_id = ?`, r.ID).Scan(&trades); err != nil {
		t.Fatalf("counting trades: %v", err)
	}
	if trades != 1 {
		t.Errorf("stored %d trades, want 1", trades)
	}

	curve, err := s.EquityCurve(ctx, r.ID)
	if err != nil {
		t.Fatalf("EquityCurve: %v", err)
	}
	if len(curve) != 2 || !curve[0].Total.Equal(r.EquityCurve[0].Total) {
		t.Errorf("EquityCurve = %+v, want the saved curve", curve)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" || !runs[0].UseAI {
		t.Errorf("ListRuns = %+v, want run-1 with AI", runs)
	}
}

func TestSQLiteStoreListPredictions(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	r := sampleRun()
	if err := s.SaveBacktest(ctx, r); err != nil {
		t.Fatalf("SaveBacktest: %v", err)
	}

	all, err := s.ListPredictions(ctx, r.Start, r.End, nil)
	if err != nil {
		t.Fatalf("ListPredictions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListPredictions returned %d predictions, want 2", len(all))
	}
	if all[0].Symbol != "AAPL" || all[0].ExpectedReturn == nil || *all[0].ExpectedReturn != 0.012 {
		t.Errorf("first prediction = %+v, want AAPL with expected return 0.012", all[0])
	}
	if all[1].ExpectedReturn != nil {
		t.Errorf("second prediction expected return = %v, want nil", *all[1].ExpectedReturn)
	}

	msft, err := s.ListPredictions(ctx, r.Start, r.End, []string{"msft"})
	if err != nil {
		t.Fatalf("ListPredictions(msft): %v", err)
	}
	if len(msft) != 1 || msft[0].Direction != domain.DirectionDown {
		t.Errorf("ListPredictions(msft) = %+v, want one DOWN prediction", msft)
	}
}

func TestSQLiteStoreSaveValidationAndRegimes(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	v := &domain.ValidationResult{
		StrategyName: "trend",
		RunID:        "run-1",
		Status:       domain.StatusWarning,
		Checks:       domain.Checks{Return: true, Drawdown: true, Sharpe: true, WinRate: true},
		Messages:     []string{"return ok"},
	}
	if err := s.SaveValidation(ctx, v); err != nil {
		t.Fatalf("SaveValidation: %v", err)
	}
	var score float64
	if err := s.db.QueryRow(`SELECT overall_score FROM validations WHERE run_id = ?`, "run-1").Scan(&score); err != nil {
		t.Fatalf("reading validation: %v", err)
	}
	if score != 50 {
		t.Errorf("stored overall_score = %v, want 50", score)
	}

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	regimes := []domain.MarketRegimeAnalysis{
		{Start: start, End: start.AddDate(0, 1, 0), Regime: domain.RegimeBull, Days: 22},
		{Start: start.AddDate(0, 1, 1), End: start.AddDate(0, 2, 0), Regime: domain.RegimeSideways, Days: 20},
	}
	if err := s.SaveRegimes(ctx, regimes); err != nil {
		t.Fatalf("SaveRegimes: %v", err)
	}
	// Saving the same segmentation again replaces it.
	if err := s.SaveRegimes(ctx, regimes); err != nil {
		t.Fatalf("SaveRegimes (again): %v", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM regimes`).Scan(&n); err != nil {
		t.Fatalf("counting regimes: %v", err)
	}
	if n != 2 {
		t.Errorf("stored %d regimes, want 2", n)
	}
}

func TestSQLiteStoreSaveComparison(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	ai := sampleRun()
	trad := sampleRun()
	trad.ID = "run-2"
	trad.UseAI = false
	trad.AIPredictions = nil

	c := &domain.StrategyComparison{StrategyName: "trend", AI: ai, Traditional: trad, PValue: 1}
	if err := s.SaveComparison(ctx, c); err != nil {
		t.Fatalf("SaveComparison: %v", err)
	}
	if err := s.SaveComparison(ctx, &domain.StrategyComparison{StrategyName: "x"}); err == nil {
		t.Error("SaveComparison without legs returned nil error")
	}
}
