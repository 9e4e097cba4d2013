package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"strategylab/internal/gather"
)

func newFetchCmd(g *globalFlags) *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download daily bars from Alpaca into the bar store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Alpaca.APIKey == "" || a.cfg.Alpaca.APISecret == "" {
				return errors.New("alpaca credentials missing: set APCA_API_KEY_ID and APCA_API_SECRET_KEY")
			}
			if rf.start == "" && a.cfg.Gather.StartDate != "" {
				rf.start = a.cfg.Gather.StartDate
			}
			start, end, err := rf.period(time.Now())
			if err != nil {
				return err
			}
			symbols := splitList(rf.symbols)
			if len(symbols) == 0 {
				symbols = a.cfg.Backtest.Symbols
			}
			if len(symbols) == 0 {
				return errors.New("no symbols: pass --symbols or set backtest.symbols")
			}

			fetcher := gather.NewAlpacaFetcher(a.cfg.Alpaca.APIKey, a.cfg.Alpaca.APISecret, a.cfg.Alpaca.DataURL)
			gt := gather.NewDailyBarGatherer(fetcher, a.bars, a.bars, gather.DailyConfig{
				Symbols:         symbols,
				Range:           gather.DateRange{Start: start, End: end},
				Market:          a.cfg.Backtest.Market,
				BatchSize:       a.cfg.Gather.BatchSize,
				RateLimitPerMin: a.cfg.Gather.RateLimitPerMin,
				MaxAttempts:     a.cfg.Gather.MaxAttempts,
			}, a.log)

			sum, err := gt.Gather(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "batches: %d (failed %d)  symbols: %d  bars: %d  scores: %d\n",
				sum.Batches, sum.FailedBatches, sum.Symbols, sum.Bars, sum.Scores)
			return err
		},
	}
	rf.bind(cmd)
	return cmd
}
