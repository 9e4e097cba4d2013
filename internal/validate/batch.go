package validate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Validated pairs a backtest with its validation.
type Validated struct {
	Run        *domain.BacktestResult
	Validation *domain.ValidationResult
}

// ValidateMany backtests and validates each strategy over req. Results keep
// the order of strategies. The first run error cancels the batch.
func (v *Validator) ValidateMany(ctx context.Context, strategies []strategy.Strategy, req Request) ([]Validated, error) {
	if v.engine == nil {
		return nil, ErrNoEngine
	}
	out := make([]Validated, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.limit())
	for i, s := range strategies {
		g.Go(func() error {
			if s == nil {
				return fmt.Errorf("strategy %d is nil", i)
			}
			res, err := v.engine.Run(gctx, req.runConfig(s, req.UseAI))
			if err != nil {
				return fmt.Errorf("validating %s: %w", s.Name(), err)
			}
			out[i] = Validated{Run: res, Validation: v.Validate(s.Name(), res)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CompareMany runs Compare for each strategy. Results keep the order of
// strategies.
func (v *Validator) CompareMany(ctx context.Context, strategies []strategy.Strategy, req Request) ([]*domain.StrategyComparison, error) {
	if v.engine == nil {
		return nil, ErrNoEngine
	}
	out := make([]*domain.StrategyComparison, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.limit())
	for i, s := range strategies {
		g.Go(func() error {
			cmp, err := v.Compare(gctx, s, req)
			if err != nil {
				return err
			}
			out[i] = cmp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Validator) limit() int {
	if v.Concurrency <= 0 {
		return 1
	}
	return v.Concurrency
}
