package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"strategylab/internal/domain"
	"strategylab/internal/history"
)

func newRegimesCmd(g *globalFlags) *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "regimes",
		Short: "Segment history into bull, bear and sideways regimes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			start, end, symbols, err := a.analysisRange(cmd, &rf)
			if err != nil {
				return err
			}
			regimes, err := a.analyzer(start, end).IdentifyRegimes(cmd.Context(), start, end, symbols)
			if err != nil {
				return err
			}
			if err := a.results.SaveRegimes(cmd.Context(), regimes); err != nil {
				return err
			}
			return writeRegimes(cmd.OutOrStdout(), regimes)
		},
	}
	rf.bind(cmd)
	return cmd
}

func newAccuracyCmd(g *globalFlags) *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "accuracy",
		Short: "Score stored AI predictions against realized moves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			start, end, symbols, err := a.analysisRange(cmd, &rf)
			if err != nil {
				return err
			}
			rep, err := a.analyzer(start, end).AnalyzePredictionAccuracy(cmd.Context(), start, end, symbols)
			if err != nil {
				return err
			}
			return writeAccuracy(cmd.OutOrStdout(), rep)
		},
	}
	rf.bind(cmd)
	return cmd
}

func newSentimentCmd(g *globalFlags) *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "sentiment",
		Short: "Measure how sentiment scores anticipated next-day moves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			start, end, symbols, err := a.analysisRange(cmd, &rf)
			if err != nil {
				return err
			}
			rep, err := a.analyzer(start, end).AnalyzeSentimentImpact(cmd.Context(), start, end, symbols)
			if err != nil {
				return err
			}
			return writeSentiment(cmd.OutOrStdout(), rep)
		},
	}
	rf.bind(cmd)
	return cmd
}

func (a *app) analysisRange(cmd *cobra.Command, rf *rangeFlags) (time.Time, time.Time, []string, error) {
	start, end, err := rf.period(time.Now())
	if err != nil {
		return time.Time{}, time.Time{}, nil, err
	}
	symbols, err := a.symbols(cmd.Context(), rf.symbols)
	if err != nil {
		return time.Time{}, time.Time{}, nil, err
	}
	return start, end, symbols, nil
}

func writeRegimes(w io.Writer, regimes []domain.MarketRegimeAnalysis) error {
	if len(regimes) == 0 {
		_, err := fmt.Fprintf(w, "not enough history: at least %d trading days needed\n", history.LongWindow)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tREGIME\tDAYS\tRETURN%\tVOL%\tMAXDD%\tTREND%\tAI%\tPREDS")
	for _, r := range regimes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.1f\t%.1f\t%d\n",
			domain.DayKey(r.Start), domain.DayKey(r.End), r.Regime, r.Days,
			r.PeriodReturn, r.Volatility, r.MaxDrawdown, r.Characteristics.TrendStrength,
			r.AIAccuracy, r.AIPredictionCount)
	}
	return tw.Flush()
}

func writeAccuracy(w io.Writer, rep *history.AccuracyReport) error {
	fmt.Fprintf(w, "predictions: %d  scored: %d  accuracy: %.1f%%  hit rate: %.1f%%  confidence corr: %.2f\n\n",
		rep.Predictions, rep.Scored, rep.Accuracy, rep.HitRate, rep.ConfidenceCorrelation)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tACCURACY%\tHITS\tCOUNT")
	for _, s := range rep.BySymbol {
		fmt.Fprintf(tw, "%s\t%.1f\t%d\t%d\n", s.Symbol, s.Accuracy, s.Hits, s.Count)
	}
	fmt.Fprintln(tw, "\nTYPE\tACCURACY%\t\tCOUNT")
	types := make([]string, 0, len(rep.ByType))
	for t := range rep.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		ta := rep.ByType[t]
		fmt.Fprintf(tw, "%s\t%.1f\t\t%d\n", t, ta.Accuracy, ta.Count)
	}
	return tw.Flush()
}

func writeSentiment(w io.Writer, rep *history.SentimentReport) error {
	fmt.Fprintf(w, "samples: %d  correlation: %.3f  accuracy: %.1f%%\n\n", rep.Samples, rep.Correlation, rep.Accuracy)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tCORRELATION\tACCURACY%\tSAMPLES")
	for _, s := range rep.BySymbol {
		fmt.Fprintf(tw, "%s\t%.3f\t%.1f\t%d\n", s.Symbol, s.Correlation, s.Accuracy, s.Samples)
	}
	return tw.Flush()
}
