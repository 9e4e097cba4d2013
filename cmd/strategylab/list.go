package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
	"strategylab/internal/strategy/builtins"
)

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the registered strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := strategy.NewRegistry()
			builtins.Register(r)
			for _, name := range r.List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newRunsCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recently stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			runs, err := a.results.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTRATEGY\tAI\tSTART\tEND\tFINAL\tANNUAL%\tSHARPE\tMAXDD%\tTRADES")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
					r.ID, r.Strategy, r.UseAI, domain.DayKey(r.Start), domain.DayKey(r.End),
					r.FinalCapital, r.AnnualReturn, r.SharpeRatio, r.MaxDrawdown, r.TotalTrades)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func newEquityCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "equity <run-id>",
		Short: "Print the stored equity curve of a run with its running drawdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			curve, err := a.results.EquityCurve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(curve) == 0 {
				return fmt.Errorf("no equity curve stored for run %q", args[0])
			}
			return writeEquity(cmd.OutOrStdout(), curve)
		},
	}
}

func writeEquity(w io.Writer, curve []domain.EquityPoint) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTOTAL\tCASH\tPOSITIONS\tDRAWDOWN%")
	peak := curve[0].Total
	for _, p := range curve {
		if p.Total.GreaterThan(peak) {
			peak = p.Total
		}
		dd := 0.0
		if peak.IsPositive() {
			dd = peak.Sub(p.Total).Div(peak).InexactFloat64() * 100
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\n", domain.DayKey(p.Date),
			p.Total.StringFixed(2), p.Cash.StringFixed(2), p.Positions.StringFixed(2), dd)
	}
	return tw.Flush()
}
