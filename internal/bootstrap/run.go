package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/slopecast/slopecast-api/config"
	"github.com/slopecast/slopecast-api/internal/adapters/reaper"
	"github.com/slopecast/slopecast-api/internal/adapters/scheduler"
)

// stopTimeout bounds how long Run waits for workers after the first one exits or the
// context ends.
const stopTimeout = 15 * time.Second

var errNoServices = errors.New("no services enabled")

// RunConfig is everything the long-running services need.
type RunConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Redis    redis.UniversalClient
	Mongo    *mongo.Client
	Logger   *slog.Logger
}

// worker is one long-running component bound to a service mode.
type worker struct {
	mode config.ServiceMode
	name string
	run  func(ctx context.Context) error
}

// Run starts every enabled service and blocks until ctx is cancelled or one of them fails.
// A failure stops the others; its error is returned.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Config == nil {
		return errors.New("run config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := cfg.Config.EnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	return runWorkers(ctx, logger, enabled, workers(cfg, logger))
}

func workers(cfg RunConfig, logger *slog.Logger) []worker {
	app := cfg.Config
	sink := cfg.Services.Observability.MetricsSink
	return []worker{
		{
			mode: config.ServiceModeHTTP,
			name: "http server",
			run: func(ctx context.Context) error {
				srv := newHTTPServer(app, cfg.Services, Probes(cfg.DB, cfg.Redis, cfg.Mongo), logger)
				return serveHTTP(ctx, srv, app.HTTP.ShutdownTimeout, logger)
			},
		},
		{
			mode: config.ServiceModeQueue,
			name: "queue processor",
			run: func(ctx context.Context) error {
				if cfg.Services.Processor == nil {
					return errors.New("queue processor is not configured")
				}
				return cfg.Services.Processor.Run(ctx)
			},
		},
		{
			mode: config.ServiceModeFetcher,
			name: "forecast refresher",
			run: func(ctx context.Context) error {
				if cfg.Services.Weather == nil {
					return errors.New("weather service is not configured")
				}
				runner, err := scheduler.NewRunner(scheduler.RunnerOptions{
					Refresher:  cfg.Services.Weather,
					Interval:   app.Fetch.ForecastInterval,
					RunAtStart: app.Fetch.RefreshAtStart,
					Logger:     logger,
					Metrics:    sink,
				})
				if err != nil {
					return fmt.Errorf("create forecast refresher: %w", err)
				}
				return runner.Run(ctx)
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			run: func(ctx context.Context) error {
				opts := reaper.RunnerOptions{DB: cfg.DB, Config: app.Reaper, Logger: logger, Metrics: sink}
				if cfg.Services.AdminEvents != nil {
					opts.Events = cfg.Services.AdminEvents
				}
				runner, err := reaper.NewRunner(opts)
				if err != nil {
					return fmt.Errorf("create reaper: %w", err)
				}
				return runner.Run(ctx)
			},
		},
	}
}

func runWorkers(ctx context.Context, logger *slog.Logger, enabled []config.ServiceMode, all []worker) error {
	g, gctx := errgroup.WithContext(ctx)
	started := 0
	for _, w := range all {
		if !slices.Contains(enabled, w.mode) {
			continue
		}
		started++
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", w.name, "mode", w.mode)
			if err := w.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", w.name, err)
			}
			logger.Info("service stopped", "service", w.name)
			return nil
		})
	}
	if started == 0 {
		return errNoServices
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
	}

	select {
	case err := <-done:
		if err != nil {
			logger.Error("service failed", "error", err)
		}
		return err
	case <-time.After(stopTimeout):
		return fmt.Errorf("services did not stop within %s", stopTimeout)
	}
}
