package main

import (
	"time"

	"github.com/spf13/cobra"

	"strategylab/internal/domain"
	"strategylab/internal/validate"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	var (
		rf    rangeFlags
		mf    moneyFlags
		names string
		useAI bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Backtest strategies and judge them against the validation criteria",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			req, v, err := a.request(cmd, &rf, &mf, useAI || a.cfg.AI.Enabled)
			if err != nil {
				return err
			}
			strategies, err := a.registry.Resolve(splitList(names))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			validated, err := v.ValidateMany(ctx, strategies, req)
			if err != nil {
				return err
			}
			results := make([]*domain.ValidationResult, 0, len(validated))
			for _, item := range validated {
				if err := a.saveRun(ctx, item.Run); err != nil {
					return err
				}
				if err := a.results.SaveValidation(ctx, item.Validation); err != nil {
					return err
				}
				results = append(results, item.Validation)
			}
			return validate.WriteReport(cmd.OutOrStdout(), results, nil)
		},
	}
	rf.bind(cmd)
	mf.bind(cmd)
	cmd.Flags().StringVar(&names, "strategies", "", "comma separated strategy names (default all)")
	cmd.Flags().BoolVar(&useAI, "ai", false, "feed AI insights to the strategies")
	return cmd
}

func newCompareCmd(g *globalFlags) *cobra.Command {
	var (
		rf    rangeFlags
		mf    moneyFlags
		names string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare AI-assisted and traditional runs of each strategy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			req, v, err := a.request(cmd, &rf, &mf, true)
			if err != nil {
				return err
			}
			strategies, err := a.registry.Resolve(splitList(names))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			comparisons, err := v.CompareMany(ctx, strategies, req)
			if err != nil {
				return err
			}
			results := make([]*domain.ValidationResult, 0, len(comparisons))
			for _, c := range comparisons {
				for _, r := range []*domain.BacktestResult{c.AI, c.Traditional} {
					if err := a.saveRun(ctx, r); err != nil {
						return err
					}
				}
				if err := a.results.SaveComparison(ctx, c); err != nil {
					return err
				}
				res := v.ValidateComparison(c)
				if err := a.results.SaveValidation(ctx, res); err != nil {
					return err
				}
				results = append(results, res)
			}
			return validate.WriteReport(cmd.OutOrStdout(), results, comparisons)
		},
	}
	rf.bind(cmd)
	mf.bind(cmd)
	cmd.Flags().StringVar(&names, "strategies", "", "comma separated strategy names (default all)")
	return cmd
}

func (a *app) request(cmd *cobra.Command, rf *rangeFlags, mf *moneyFlags, useAI bool) (validate.Request, *validate.Validator, error) {
	start, end, err := rf.period(time.Now())
	if err != nil {
		return validate.Request{}, nil, err
	}
	symbols, err := a.symbols(cmd.Context(), rf.symbols)
	if err != nil {
		return validate.Request{}, nil, err
	}
	capital, commission := mf.resolve(a)
	req := validate.Request{
		Start:          start,
		End:            end,
		Symbols:        symbols,
		InitialCapital: capital,
		CommissionRate: commission,
		UseAI:          useAI,
	}
	return req, a.validator(start, end), nil
}
