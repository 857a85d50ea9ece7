// Package scheduler runs the forecast refresher: a ticker that asks the weather service for a
// freshness-gated forecast batch.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/slopecast/slopecast-api/internal/domain/model"
	obserrors "github.com/slopecast/slopecast-api/internal/observability/errors"
	"github.com/slopecast/slopecast-api/internal/observability/metrics"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
)

// DefaultInterval is used when RunnerOptions.Interval is not positive.
const DefaultInterval = 30 * time.Minute

// ForecastRefresher is the subset of the weather service the runner drives.
type ForecastRefresher interface {
	FetchForecastLocations(ctx context.Context, ids []string, force bool) (*model.FetchReport, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Refresher ForecastRefresher // Required
	Interval  time.Duration
	// RunAtStart triggers a batch immediately instead of waiting one interval.
	RunAtStart bool
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// Runner refreshes forecasts for every location on a fixed cadence. Models still within
// their refresh interval are skipped by the fetch orchestrator, so a short cadence is cheap.
type Runner struct {
	refresher  ForecastRefresher
	interval   time.Duration
	runAtStart bool
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewRunner creates a new forecast refresher runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Refresher == nil {
		return nil, errors.New("forecast refresher is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		refresher:  opts.Refresher,
		interval:   opts.Interval,
		runAtStart: opts.RunAtStart,
		logger:     logger.With("component", "forecast_refresher"),
		metrics:    opts.Metrics,
	}, nil
}

// Run ticks until the context is cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting forecast refresher", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if r.runAtStart {
		r.Tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "forecast refresher stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one forecast batch. Errors are logged; the loop keeps going.
func (r *Runner) Tick(ctx context.Context) {
	start := time.Now()
	report, err := r.refresher.FetchForecastLocations(ctx, nil, false)
	elapsed := time.Since(start)

	r.emitTickMetrics(report, elapsed, err)

	switch {
	case err != nil:
		r.logger.ErrorContext(ctx, "forecast refresh failed", "error", err)
	case report != nil && report.UnitsTotal == 0:
		r.logger.DebugContext(ctx, "forecast refresh skipped, models fresh", "skipped", report.Skipped)
	case report != nil:
		r.logger.InfoContext(ctx, "forecast refresh complete",
			"units", report.UnitsTotal,
			"failed", report.UnitsFailed,
			"duration", elapsed,
		)
	}
}

func (r *Runner) emitTickMetrics(report *model.FetchReport, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if report == nil || report.UnitsTotal == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("refresher.tick", 1, tags)
	if elapsed > 0 {
		r.metrics.Timing("refresher.tick_duration", elapsed, tags)
	}
	if err == nil {
		r.metrics.Gauge("refresher.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
