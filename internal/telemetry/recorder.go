// Package telemetry exposes Prometheus metrics for backtests and validations.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the metrics of one process on a private registry. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	trades         *prometheus.CounterVec
	skippedDays    prometheus.Counter
	strategyErrors prometheus.Counter
	insightErrors  prometheus.Counter
	validations    *prometheus.CounterVec
	runDuration    prometheus.Histogram
}

// NewRecorder creates a Recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strategylab_backtest_runs_total",
				Help: "Completed backtest runs by strategy and AI mode",
			},
			[]string{"strategy", "ai"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strategylab_trades_total",
				Help: "Simulated trades by strategy and side",
			},
			[]string{"strategy", "side"},
		),
		skippedDays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strategylab_skipped_days_total",
			Help: "Trading days skipped for lack of data",
		}),
		strategyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strategylab_strategy_errors_total",
			Help: "Strategy failures isolated by the simulation loop",
		}),
		insightErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strategylab_insight_errors_total",
			Help: "Days whose AI insights could not be obtained",
		}),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strategylab_validations_total",
				Help: "Validations by resulting status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strategylab_backtest_duration_seconds",
			Help:    "Wall time of backtest runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	r.registry.MustRegister(
		r.runs,
		r.trades,
		r.skippedDays,
		r.strategyErrors,
		r.insightErrors,
		r.validations,
		r.runDuration,
	)
	return r
}

// Registry returns the underlying registry for exposition.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RunCompleted records a finished run and its duration.
func (r *Recorder) RunCompleted(strategy string, ai bool, d time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(strategy, strconv.FormatBool(ai)).Inc()
	r.runDuration.Observe(d.Seconds())
}

// Trade records one simulated trade.
func (r *Recorder) Trade(strategy, side string) {
	if r == nil {
		return
	}
	r.trades.WithLabelValues(strategy, side).Inc()
}

// SkippedDay records a trading day without data.
func (r *Recorder) SkippedDay() {
	if r == nil {
		return
	}
	r.skippedDays.Inc()
}

// StrategyError records an isolated strategy failure.
func (r *Recorder) StrategyError() {
	if r == nil {
		return
	}
	r.strategyErrors.Inc()
}

// InsightError records a day without AI insights due to a failure.
func (r *Recorder) InsightError() {
	if r == nil {
		return
	}
	r.insightErrors.Inc()
}

// Validation records a validation outcome.
func (r *Recorder) Validation(status string) {
	if r == nil {
		return
	}
	r.validations.WithLabelValues(status).Inc()
}

// WriteTextfile writes the current metrics in the node-exporter textfile
// format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
