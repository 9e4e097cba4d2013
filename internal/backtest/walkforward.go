package backtest

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"strategylab/internal/domain"
	"strategylab/internal/stats"
)

// Walk-forward defaults in calendar days.
const (
	DefaultWindowDays = 180
	DefaultStepDays   = 30
)

// WalkForwardConfig sets the rolling window geometry.
type WalkForwardConfig struct {
	WindowDays  int
	StepDays    int
	Concurrency int // windows simulated at once; <= 0 means 4
}

// WalkForwardResult holds one backtest per window plus a summary.
type WalkForwardResult struct {
	Windows []*domain.BacktestResult

	MeanAnnualReturn float64
	StdAnnualReturn  float64
	MeanSharpe       float64
	WorstDrawdown    float64
	PositiveWindows  int
}

// Windows returns the [start, end] pairs of a walk-forward over [start, end].
// The last window is clipped to end, and no window starts after the one
// that reaches end.
func Windows(start, end time.Time, wf WalkForwardConfig) [][2]time.Time {
	if wf.WindowDays <= 0 {
		wf.WindowDays = DefaultWindowDays
	}
	if wf.StepDays <= 0 {
		wf.StepDays = DefaultStepDays
	}
	start, end = domain.Day(start), domain.Day(end)

	var out [][2]time.Time
	for s := start; !s.After(end); s = s.AddDate(0, 0, wf.StepDays) {
		e := s.AddDate(0, 0, wf.WindowDays-1)
		if e.After(end) {
			e = end
		}
		out = append(out, [2]time.Time{s, e})
		if e.Equal(end) {
			break
		}
	}
	return out
}

// WalkForward runs cfg over rolling windows. Windows are independent runs
// and execute concurrently; results keep window order.
func (e *Engine) WalkForward(ctx context.Context, cfg RunConfig, wf WalkForwardConfig) (*WalkForwardResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	windows := Windows(cfg.Start, cfg.End, wf)
	results := make([]*domain.BacktestResult, len(windows))

	limit := wf.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, w := range windows {
		g.Go(func() error {
			c := cfg
			c.Start, c.End = w[0], w[1]
			r, err := e.Run(gctx, c)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &WalkForwardResult{Windows: results}
	if len(results) == 0 {
		return out, nil
	}
	annual := make([]float64, len(results))
	sharpe := make([]float64, len(results))
	for i, r := range results {
		annual[i] = r.Metrics.AnnualReturn
		sharpe[i] = r.Metrics.SharpeRatio
		if r.FinalCapital > r.InitialCapital {
			out.PositiveWindows++
		}
		if r.Metrics.MaxDrawdown > out.WorstDrawdown {
			out.WorstDrawdown = r.Metrics.MaxDrawdown
		}
	}
	out.MeanAnnualReturn = stats.Mean(annual)
	out.StdAnnualReturn = stats.PopStdDev(annual)
	out.MeanSharpe = stats.Mean(sharpe)

	e.log.Info("walk-forward finished", "strategy", cfg.Strategy.Name(), "windows", len(results),
		"positive", out.PositiveWindows, "mean_annual_return", out.MeanAnnualReturn)
	return out, nil
}
