package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		rf    rangeFlags
		mf    moneyFlags
		name  string
		useAI bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest one strategy and store the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			rc, err := a.runConfig(cmd, &rf, &mf, name, useAI)
			if err != nil {
				return err
			}
			res, err := a.engine(rc.Start, rc.End).Run(cmd.Context(), rc)
			if err != nil {
				return err
			}
			if err := a.saveRun(cmd.Context(), res); err != nil {
				return err
			}
			return writeRun(cmd.OutOrStdout(), res)
		},
	}
	rf.bind(cmd)
	mf.bind(cmd)
	cmd.Flags().StringVar(&name, "strategy", "", "strategy name (see strategies)")
	cmd.Flags().BoolVar(&useAI, "ai", false, "feed AI insights to the strategy")
	cmd.MarkFlagRequired("strategy")
	return cmd
}

func newWalkForwardCmd(g *globalFlags) *cobra.Command {
	var (
		rf           rangeFlags
		mf           moneyFlags
		name         string
		useAI        bool
		window, step int
	)
	cmd := &cobra.Command{
		Use:   "walkforward",
		Short: "Backtest one strategy over rolling windows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			rc, err := a.runConfig(cmd, &rf, &mf, name, useAI)
			if err != nil {
				return err
			}
			wf := backtest.WalkForwardConfig{
				WindowDays:  a.cfg.Backtest.WindowDays,
				StepDays:    a.cfg.Backtest.StepDays,
				Concurrency: a.cfg.Backtest.Concurrency,
			}
			if window > 0 {
				wf.WindowDays = window
			}
			if step > 0 {
				wf.StepDays = step
			}
			out, err := a.engine(rc.Start, rc.End).WalkForward(cmd.Context(), rc, wf)
			if err != nil {
				return err
			}
			for _, r := range out.Windows {
				if err := a.saveRun(cmd.Context(), r); err != nil {
					return err
				}
			}
			return writeWalkForward(cmd.OutOrStdout(), out)
		},
	}
	rf.bind(cmd)
	mf.bind(cmd)
	cmd.Flags().StringVar(&name, "strategy", "", "strategy name (see strategies)")
	cmd.Flags().BoolVar(&useAI, "ai", false, "feed AI insights to the strategy")
	cmd.Flags().IntVar(&window, "window", 0, "window length in calendar days (default from config)")
	cmd.Flags().IntVar(&step, "step", 0, "window step in calendar days (default from config)")
	cmd.MarkFlagRequired("strategy")
	return cmd
}

func (a *app) runConfig(cmd *cobra.Command, rf *rangeFlags, mf *moneyFlags, name string, useAI bool) (backtest.RunConfig, error) {
	s, ok := a.registry.Get(name)
	if !ok {
		return backtest.RunConfig{}, fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, name)
	}
	start, end, err := rf.period(time.Now())
	if err != nil {
		return backtest.RunConfig{}, err
	}
	symbols, err := a.symbols(cmd.Context(), rf.symbols)
	if err != nil {
		return backtest.RunConfig{}, err
	}
	capital, commission := mf.resolve(a)
	return backtest.RunConfig{
		Strategy:       s,
		Start:          start,
		End:            end,
		Symbols:        symbols,
		InitialCapital: capital,
		UseAI:          useAI || a.cfg.AI.Enabled,
		CommissionRate: commission,
	}, nil
}

func writeRun(w io.Writer, r *domain.BacktestResult) error {
	m := r.Metrics
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", r.ID)
	fmt.Fprintf(tw, "strategy\t%s (ai: %v)\n", r.StrategyName, r.UseAI)
	fmt.Fprintf(tw, "period\t%s .. %s (%d trading days, %d skipped)\n",
		domain.DayKey(r.Start), domain.DayKey(r.End), r.TradingDays, r.SkippedDays)
	fmt.Fprintf(tw, "capital\t%.2f -> %.2f (%+.2f%%)\n", r.InitialCapital, r.FinalCapital, m.TotalReturnPct)
	fmt.Fprintf(tw, "annual return\t%.2f%%\n", m.AnnualReturn)
	fmt.Fprintf(tw, "volatility\t%.2f%%\n", m.Volatility)
	fmt.Fprintf(tw, "sharpe\t%.2f\n", m.SharpeRatio)
	fmt.Fprintf(tw, "max drawdown\t%.2f%%\n", m.MaxDrawdown)
	fmt.Fprintf(tw, "trades\t%d (won %d, lost %d, win rate %.1f%%)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRate)
	fmt.Fprintf(tw, "profit factor\t%.2f\n", m.ProfitFactor)
	if r.UseAI {
		fmt.Fprintf(tw, "ai accuracy\t%.1f%% over %d predictions (confidence corr %.2f)\n",
			m.AIAccuracy, m.AIPredictionCount, m.AIConfidenceCorrelation)
	}
	if r.StrategyErrors > 0 {
		fmt.Fprintf(tw, "strategy errors\t%d\n", r.StrategyErrors)
	}
	return tw.Flush()
}

func writeWalkForward(w io.Writer, out *backtest.WalkForwardResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tANNUAL%\tSHARPE\tMAXDD%\tTRADES")
	for _, r := range out.Windows {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%d\n", domain.DayKey(r.Start), domain.DayKey(r.End),
			r.Metrics.AnnualReturn, r.Metrics.SharpeRatio, r.Metrics.MaxDrawdown, r.Metrics.TotalTrades)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nwindows: %d  positive: %d  mean annual: %.2f%% (sd %.2f)  mean sharpe: %.2f  worst drawdown: %.2f%%\n",
		len(out.Windows), out.PositiveWindows, out.MeanAnnualReturn, out.StdAnnualReturn, out.MeanSharpe, out.WorstDrawdown)
	return err
}
