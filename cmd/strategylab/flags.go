package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"strategylab/internal/domain"
)

// rangeFlags are the period and universe flags shared by the simulation and
// analysis commands.
type rangeFlags struct {
	start   string
	end     string
	symbols string
}

func (f *rangeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "first day YYYY-MM-DD (default one year before --end)")
	cmd.Flags().StringVar(&f.end, "end", "", "last day YYYY-MM-DD (default yesterday)")
	cmd.Flags().StringVar(&f.symbols, "symbols", "", "comma separated symbols (default config universe, then stored symbols)")
}

// period resolves the flags relative to now.
func (f *rangeFlags) period(now time.Time) (time.Time, time.Time, error) {
	end := domain.Day(now).AddDate(0, 0, -1)
	if f.end != "" {
		t, err := time.Parse(domain.DateLayout, f.end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end %q: %w", f.end, err)
		}
		end = t
	}
	start := end.AddDate(-1, 0, 0)
	if f.start != "" {
		t, err := time.Parse(domain.DateLayout, f.start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start %q: %w", f.start, err)
		}
		start = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", domain.DayKey(end), domain.DayKey(start))
	}
	return start, end, nil
}

// moneyFlags override the configured capital and commission.
type moneyFlags struct {
	capital    float64
	commission float64
}

func (f *moneyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.capital, "capital", 0, "initial capital (default from config)")
	cmd.Flags().Float64Var(&f.commission, "commission", -1, "commission rate per trade (default from config)")
}

func (f *moneyFlags) resolve(a *app) (float64, float64) {
	capital, commission := a.cfg.Backtest.InitialCapital, a.cfg.Backtest.CommissionRate
	if f.capital > 0 {
		capital = f.capital
	}
	if f.commission >= 0 {
		commission = f.commission
	}
	return capital, commission
}
