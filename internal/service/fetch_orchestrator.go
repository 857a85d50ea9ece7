package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/observability/metrics"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
)

// FetchRequest describes one orchestrated batch.
type FetchRequest struct {
	Context     model.FetchContext
	LocationIDs []string
	// Window selects explicit calendar days; when zero, ForwardDays applies.
	Window      model.DateWindow
	ForwardDays int
	// Force disables the freshness skip for forecast batches.
	Force bool
}

// FetchStores groups the stores the orchestrator reads and writes.
type FetchStores struct {
	Locations core.LocationRepository // Required
	Settings  core.SettingsProvider   // Required
	Freshness core.FreshnessStore     // Optional: without it nothing is skipped or marked
}

// FetchOrchestratorOptions groups dependencies for FetchOrchestrator.
type FetchOrchestratorOptions struct {
	Stores  FetchStores
	Fetcher core.UnitFetcher                           // Required
	Events  core.AdminEventLogger                      // Optional
	Metrics statsd.Sink                                // Optional
	Logger  *slog.Logger                               // Optional
	Now     func() time.Time                           // Optional: defaults to time.Now
	Sleep   func(context.Context, time.Duration) error // Optional: defaults to a timer
}

// FetchOrchestrator runs the {location × model × elevation} fan-out. Locations are processed
// one after another; the units of a location run concurrently and are all attempted even when
// some fail. Its calls go straight to the provider, independently of the job queue.
type FetchOrchestrator struct {
	locations core.LocationRepository
	settings  core.SettingsProvider
	freshness core.FreshnessStore
	fetcher   core.UnitFetcher
	events    core.AdminEventLogger
	metrics   statsd.Sink
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// NewFetchOrchestrator constructs a FetchOrchestrator.
func NewFetchOrchestrator(opts FetchOrchestratorOptions) (*FetchOrchestrator, error) {
	if opts.Stores.Locations == nil {
		return nil, errors.New("LocationRepository is required")
	}
	if opts.Stores.Settings == nil {
		return nil, errors.New("SettingsProvider is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("UnitFetcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &FetchOrchestrator{
		locations: opts.Stores.Locations,
		settings:  opts.Stores.Settings,
		freshness: opts.Stores.Freshness,
		fetcher:   opts.Fetcher,
		events:    opts.Events,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "fetch_orchestrator"),
		now:       now,
		sleep:     sleep,
	}, nil
}

// batchState accumulates unit outcomes across goroutines.
type batchState struct {
	mu        sync.Mutex
	succeeded map[string]bool
	total     atomic.Int64
	failed    atomic.Int64
}

func (b *batchState) recordSuccess(modelID string) {
	b.mu.Lock()
	b.succeeded[modelID] = true
	b.mu.Unlock()
}

// Run executes one batch and returns its report. Unit failures never fail the batch; only
// being unable to load the locations or models does.
func (o *FetchOrchestrator) Run(ctx context.Context, req FetchRequest) (*model.FetchReport, error) {
	if !req.Context.Valid() {
		return nil, fmt.Errorf("invalid fetch context %q", req.Context)
	}
	started := o.now()
	report := &model.FetchReport{
		Context:     req.Context,
		FreshModels: []string{},
		Errors:      map[string]string{},
		StartedAt:   started.UTC(),
	}

	models, err := o.settings.Models(ctx)
	if err != nil {
		if len(models) == 0 {
			return nil, fmt.Errorf("load models: %w", err)
		}
		o.logger.WarnContext(ctx, "model settings unavailable, using defaults", "error", err)
	}
	policy, err := o.settings.RetryPolicy(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "retry settings unavailable, using defaults", "error", err)
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	models, report.Skipped = o.filterFresh(ctx, req, models, started)
	if len(models) == 0 {
		o.logger.InfoContext(ctx, "all models fresh, nothing to fetch", "context", req.Context)
		report.Duration = o.now().Sub(started)
		return report, nil
	}

	locations, err := o.locations.List(ctx, req.LocationIDs)
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	report.Locations = len(locations)

	state := &batchState{succeeded: make(map[string]bool)}
	for _, loc := range locations {
		if ctx.Err() != nil {
			report.Errors[loc.ID] = ctx.Err().Error()
			continue
		}
		if err := o.runLocation(ctx, req, loc, models, policy, state); err != nil {
			report.Errors[loc.ID] = err.Error()
			o.logEvent(ctx, model.AdminEvent{
				Type:    model.AdminEventFetchFailed,
				Message: fmt.Sprintf("%s fetch for %s had failures: %v", req.Context, loc.Name, err),
				Metadata: map[string]any{
					"location_id": loc.ID,
					"context":     string(req.Context),
					"error":       err.Error(),
				},
			})
		}
	}

	report.UnitsTotal = int(state.total.Load())
	report.UnitsFailed = int(state.failed.Load())

	if req.Context.MarksFreshness() {
		report.FreshModels = o.markFresh(ctx, models, state)
	}

	report.Duration = o.now().Sub(started)
	metrics.EmitBatch(o.metrics, string(req.Context), report.UnitsTotal, report.UnitsFailed, report.Duration)

	o.logger.InfoContext(ctx, "fetch batch complete",
		"context", req.Context,
		"locations", report.Locations,
		"units", report.UnitsTotal,
		"failed", report.UnitsFailed,
		"fresh_models", report.FreshModels,
		"duration", report.Duration,
	)
	o.logEvent(ctx, model.AdminEvent{
		Type: model.AdminEventFetchCompleted,
		Message: fmt.Sprintf("%s fetch finished: %d/%d units succeeded across %d locations",
			req.Context, report.UnitsTotal-report.UnitsFailed, report.UnitsTotal, report.Locations),
		Metadata: map[string]any{
			"context":      string(req.Context),
			"locations":    report.Locations,
			"units_total":  report.UnitsTotal,
			"units_failed": report.UnitsFailed,
			"fresh_models": report.FreshModels,
			"skipped":      report.Skipped,
			"duration_ms":  report.Duration.Milliseconds(),
		},
	})
	return report, nil
}

// filterFresh drops models refreshed within their RefreshEvery. Only unforced forecast batches skip.
func (o *FetchOrchestrator) filterFresh(
	ctx context.Context,
	req FetchRequest,
	models []model.ForecastModel,
	now time.Time,
) ([]model.ForecastModel, []string) {
	if req.Context != model.FetchContextForecast || req.Force || o.freshness == nil {
		return models, nil
	}
	keep := make([]model.ForecastModel, 0, len(models))
	var skipped []string
	for _, m := range models {
		last, ok, err := o.freshness.LastFetched(ctx, m.ID)
		if err != nil {
			o.logger.WarnContext(ctx, "freshness lookup failed, fetching anyway", "model", m.ID, "error", err)
			keep = append(keep, m)
			continue
		}
		if ok && m.RefreshEvery > 0 && now.Sub(last) < m.RefreshEvery {
			o.logger.DebugContext(ctx, "model still fresh", "model", m.ID, "last_fetched", last)
			skipped = append(skipped, m.ID)
			continue
		}
		keep = append(keep, m)
	}
	return keep, skipped
}

// runLocation fans out every (model, elevation) unit of loc and waits for all of them.
// Returns the first unit error.
func (o *FetchOrchestrator) runLocation(
	ctx context.Context,
	req FetchRequest,
	loc model.Location,
	models []model.ForecastModel,
	policy model.RetryPolicy,
	state *batchState,
) error {
	log := o.logger.With("location_id", loc.ID, "context", req.Context)
	if len(loc.Elevations) == 0 {
		log.WarnContext(ctx, "location has no elevation bands, skipping")
		return nil
	}
	log.InfoContext(ctx, "fetch start", "models", len(models), "elevations", len(loc.Elevations))
	start := o.now()

	// Plain Group: a failing unit must not cancel its siblings.
	var g errgroup.Group
	for _, m := range models {
		for _, elev := range loc.Elevations {
			unit := model.FetchUnit{
				Location:    loc,
				Model:       m,
				Elevation:   elev,
				Window:      req.Window,
				ForwardDays: req.ForwardDays,
				Context:     req.Context,
			}
			state.total.Add(1)
			g.Go(func() error {
				if err := o.fetchUnit(ctx, unit, policy); err != nil {
					state.failed.Add(1)
					return err
				}
				state.recordSuccess(unit.Model.ID)
				return nil
			})
		}
	}
	err := g.Wait()
	if err != nil {
		log.ErrorContext(ctx, "fetch error", "error", err, "duration", o.now().Sub(start))
		return err
	}
	log.InfoContext(ctx, "fetch complete", "duration", o.now().Sub(start))
	return nil
}

type retryable interface {
	Retryable() bool
}

// fetchUnit tries a unit up to policy.MaxAttempts times with linear backoff. Errors that
// declare themselves non-retryable stop early.
func (o *FetchOrchestrator) fetchUnit(ctx context.Context, unit model.FetchUnit, policy model.RetryPolicy) error {
	start := o.now()
	var (
		summary model.UnitSummary
		err     error
		attempt int
	)
	for attempt = 1; attempt <= policy.MaxAttempts; attempt++ {
		summary, err = o.fetcher.FetchUnit(ctx, unit)
		if err == nil {
			break
		}
		var r retryable
		if errors.As(err, &r) && !r.Retryable() {
			break
		}
		if attempt == policy.MaxAttempts {
			break
		}
		o.logger.DebugContext(ctx, "unit fetch failed, retrying",
			"location_id", unit.Location.ID,
			"model", unit.Model.ID,
			"elevation", unit.Elevation.Name,
			"attempt", attempt,
			"error", err,
		)
		if serr := o.sleep(ctx, policy.Backoff(attempt)); serr != nil {
			err = errors.Join(err, serr)
			break
		}
	}
	attempts := min(attempt, policy.MaxAttempts)

	metrics.EmitUnit(o.metrics, metrics.UnitMetric{
		Model:    unit.Model.ID,
		Context:  string(unit.Context),
		Attempts: attempts,
		Duration: o.now().Sub(start),
		Err:      err,
	})
	if err != nil {
		return fmt.Errorf("unit %s/%s after %d attempts: %w", unit.Model.ID, unit.Elevation.Name, attempts, err)
	}

	if summary.CoverageShort() {
		missing := summary.RequestedDays - summary.ActualDays
		o.logger.WarnContext(ctx, "provider returned fewer days than requested",
			"location_id", unit.Location.ID,
			"model", unit.Model.ID,
			"elevation", unit.Elevation.Name,
			"requested_days", summary.RequestedDays,
			"actual_days", summary.ActualDays,
		)
		metrics.EmitCoverageDiscrepancy(o.metrics, unit.Model.ID, missing)
	}
	return nil
}

// markFresh advances the freshness marker of every model with at least one successful unit.
func (o *FetchOrchestrator) markFresh(ctx context.Context, models []model.ForecastModel, state *batchState) []string {
	state.mu.Lock()
	defer state.mu.Unlock()

	fresh := make([]string, 0, len(state.succeeded))
	at := o.now().UTC()
	for _, m := range models {
		if !state.succeeded[m.ID] {
			continue
		}
		if o.freshness != nil {
			if err := o.freshness.MarkFetched(ctx, m.ID, at); err != nil {
				o.logger.ErrorContext(ctx, "mark model fresh failed", "model", m.ID, "error", err)
				continue
			}
		}
		fresh = append(fresh, m.ID)
	}
	sort.Strings(fresh)
	return fresh
}

func (o *FetchOrchestrator) logEvent(ctx context.Context, ev model.AdminEvent) {
	if o.events == nil {
		return
	}
	o.events.Log(ctx, ev)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
