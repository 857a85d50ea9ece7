package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/slopecast/slopecast-api/config"
	"github.com/slopecast/slopecast-api/internal/core"
	obserrors "github.com/slopecast/slopecast-api/internal/observability/errors"
	"github.com/slopecast/slopecast-api/internal/observability/metrics"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
)

// EventPruner deletes admin events older than a cutoff, one batch per call.
type EventPruner interface {
	DeleteOlderThan(ctx context.Context, params core.DeleteTerminalParams) (int64, error)
}

// ReaperServiceOptions groups dependencies for ReaperService. Repo and a positive
// Config.BatchSize are required.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository
	Events  EventPruner
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// ReaperService enforces retention on the job table and the admin event log. Only done and
// error jobs finished before JobMaxAge ago are removed; pending and active jobs are never
// touched.
type ReaperService struct {
	targets []retentionTarget
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// retentionTarget is one table swept in batches.
type retentionTarget struct {
	operation string
	label     string
	maxAge    time.Duration
	deleteFn  func(context.Context, core.DeleteTerminalParams) (int64, error)
}

// CleanupResult reports the rows removed by one sweep.
type CleanupResult struct {
	Jobs   int64 `json:"jobs_deleted"`
	Events int64 `json:"events_deleted"`
}

// NewReaperService constructs a ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	if opts.Config.BatchSize <= 0 {
		return nil, errors.New("reaper batch size must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	targets := []retentionTarget{{
		operation: "delete_jobs",
		label:     "delete terminal jobs",
		maxAge:    opts.Config.JobMaxAge,
		deleteFn:  opts.Repo.DeleteTerminalOlderThan,
	}}
	if opts.Events != nil {
		targets = append(targets, retentionTarget{
			operation: "delete_events",
			label:     "delete old admin events",
			maxAge:    opts.Config.EventMaxAge,
			deleteFn:  opts.Events.DeleteOlderThan,
		})
	}

	return &ReaperService{
		targets: targets,
		config:  opts.Config,
		logger:  logger.With("component", "reaper_service"),
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run sweeps once after a short random delay, then every Interval, until ctx ends. A
// cancelled context is a clean stop; a deadline is returned.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service",
		"interval", s.config.Interval,
		"job_max_age", s.config.JobMaxAge,
		"event_max_age", s.config.EventMaxAge)

	if jitter := s.startJitter(); jitter > 0 {
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		if ctx.Err() == nil {
			if _, err := s.RunOnce(ctx); err != nil {
				s.logSweepError(ctx, err)
			}
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// startJitter spreads replicas up to a tenth of the interval apart.
func (s *ReaperService) startJitter() time.Duration {
	limit := int64(s.config.Interval / 10)
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(limit)) //nolint:gosec // scheduling jitter
}

// RunOnce sweeps every target. A failing target does not stop the others; if every failure
// was a context cancellation the result is context.Canceled.
func (s *ReaperService) RunOnce(ctx context.Context) (CleanupResult, error) {
	start := s.now()
	var (
		result     CleanupResult
		errs       []error
		onlyCancel = true
		firstErr   error
		total      int64
	)

	for _, t := range s.targets {
		n, err := s.sweep(ctx, t)
		total += n
		switch t.operation {
		case "delete_jobs":
			result.Jobs = n
		case "delete_events":
			result.Events = n
		}
		s.emitOperation(t.operation, n, err)
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.label, err))
		if isContextCancellation(err) {
			continue
		}
		onlyCancel = false
		if firstErr == nil {
			firstErr = err
		}
	}

	s.emitSweep(total, firstErr, s.now().Sub(start))

	switch {
	case len(errs) == 0:
		return result, nil
	case onlyCancel:
		return result, context.Canceled
	default:
		return result, fmt.Errorf("cleanup failed: %w", errors.Join(errs...))
	}
}

// sweep deletes batches until one comes back empty.
func (s *ReaperService) sweep(ctx context.Context, t retentionTarget) (int64, error) {
	params := core.DeleteTerminalParams{Cutoff: s.now().Add(-t.maxAge), BatchSize: s.config.BatchSize}
	var total int64
	for {
		n, err := t.deleteFn(ctx, params)
		total += n
		if err == nil && n > 0 {
			err = ctx.Err()
		}
		if err != nil || n == 0 {
			if total > 0 {
				s.logger.InfoContext(ctx, t.label, "count", total, "max_age", t.maxAge)
			}
			return total, err
		}
	}
}

func (s *ReaperService) emitSweep(total int64, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	tags := map[string]string{"result": outcome(total, err)}
	if err != nil {
		tags["error_class"] = obserrors.Classify(err)
	}
	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, tags)
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
	}
}

func (s *ReaperService) emitOperation(operation string, n int64, err error) {
	if s.metrics == nil {
		return
	}
	if isContextCancellation(err) {
		err = nil
	}
	tags := map[string]string{"operation": operation, "result": outcome(n, err)}
	if err != nil {
		tags["error_class"] = obserrors.Classify(err)
	}
	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && n > 0 {
		s.metrics.Count("reaper.rows_deleted", n, tags)
	}
}

func outcome(n int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case n == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func (s *ReaperService) logSweepError(ctx context.Context, err error) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, "cleanup cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, "cleanup failed", "error", err)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
