package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
	"strategylab/internal/store"
)

func TestRangeFlagsPeriod(t *testing.T) {
	now := time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)

	var rf rangeFlags
	start, end, err := rf.period(now)
	if err != nil {
		t.Fatalf("period() error: %v", err)
	}
	if want := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
	if want := time.Date(2023, 6, 14, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}

	rf = rangeFlags{start: "2024-01-02", end: "2024-03-01"}
	start, end, err = rf.period(now)
	if err != nil {
		t.Fatalf("period() error: %v", err)
	}
	if start.Day() != 2 || end.Month() != time.March {
		t.Errorf("period() = %v, %v", start, end)
	}

	for _, bad := range []rangeFlags{
		{start: "2024-13-01"},
		{end: "yesterday"},
		{start: "2024-03-01", end: "2024-01-01"},
	} {
		if _, _, err := bad.period(now); err == nil {
			t.Errorf("period(%+v) returned nil error", bad)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" AAPL, msft,,NVDA ")
	want := []string{"AAPL", "msft", "NVDA"}
	if len(got) != len(want) {
		t.Fatalf("splitList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") should be nil")
	}
}

func TestDirOf(t *testing.T) {
	cases := map[string]string{
		"data/strategylab.db": "data",
		"/var/lib/x/y.db":     "/var/lib/x",
		"y.db":                ".",
	}
	for in, want := range cases {
		if got := dirOf(in); got != want {
			t.Errorf("dirOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"fetch", "run", "walkforward", "validate", "compare", "regimes", "accuracy", "sentiment", "strategies", "runs", "equity"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
}

func TestStrategiesCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"strategies"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	names := strings.Fields(out.String())
	if len(names) != 3 {
		t.Errorf("strategies listed %v, want 3 names", names)
	}
}

func TestEquityCommand(t *testing.T) {
	for _, k := range []string{"DATA_DIR", "SQLITE_PATH", "STRATEGYLAB_CONFIG"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "results.db")
	cfgPath := filepath.Join(dir, "strategylab.yaml")
	cfg := "storage:\n  data_dir: " + filepath.Join(dir, "data") + "\n  sqlite_path: " + dbPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	d := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	point := func(i int, total int64) domain.EquityPoint {
		return domain.EquityPoint{Date: d.AddDate(0, 0, i), Total: decimal.NewFromInt(total), Cash: decimal.NewFromInt(total), Positions: decimal.Zero}
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	err = s.SaveBacktest(context.Background(), &domain.BacktestResult{
		ID:             "run-7",
		StrategyName:   "trend",
		Start:          d,
		End:            d.AddDate(0, 0, 2),
		Symbols:        []string{"AAPL"},
		InitialCapital: 100,
		FinalCapital:   90,
		EquityCurve:    []domain.EquityPoint{point(0, 100), point(1, 120), point(2, 90)},
	})
	if cerr := s.Close(); cerr != nil {
		t.Fatalf("Close() error: %v", cerr)
	}
	if err != nil {
		t.Fatalf("SaveBacktest() error: %v", err)
	}

	run := func(id string) (string, error) {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"equity", id, "--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")})
		err := root.Execute()
		return out.String(), err
	}

	out, err := run("run-7")
	if err != nil {
		t.Fatalf("equity run-7 error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("equity printed %d lines, want header and 3 points:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[3], "2024-03-06") || !strings.HasSuffix(lines[3], "25.00") {
		t.Errorf("last line = %q, want 2024-03-06 with a 25.00%% drawdown", lines[3])
	}
	if !strings.HasSuffix(lines[2], "0.00") {
		t.Errorf("peak line = %q, want zero drawdown", lines[2])
	}

	if _, err := run("missing"); err == nil {
		t.Error("equity for an unknown run returned nil error")
	}
}
