package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/slopecast/slopecast-api/config"
	"github.com/slopecast/slopecast-api/internal/adapters/jobrunner"
	"github.com/slopecast/slopecast-api/internal/adapters/openmeteo"
	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/data"
	"github.com/slopecast/slopecast-api/internal/domain/job"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/domain/weather"
	"github.com/slopecast/slopecast-api/internal/observability/notify/slack"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
	"github.com/slopecast/slopecast-api/internal/service"
	"github.com/slopecast/slopecast-api/internal/service/adminlog"
)

const indexTimeout = 30 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Queue         *service.QueueService
	Weather       *service.WeatherService
	Processor     *jobrunner.Processor
	Settings      *data.SettingsRepo
	Locations     *data.LocationRepo
	AdminEvents   *data.AdminEventRepo
	Events        *adminlog.Logger
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink    *statsd.Client
	MetricsConfig  config.MetricsConfig
	NotifierConfig config.NotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config            *config.AppConfig
	DB                *sql.DB
	RedisClient       redis.UniversalClient
	WeatherCollection *mongo.Collection
	Logger            *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs        *data.JobRepo
	Locations   *data.LocationRepo
	AdminEvents *data.AdminEventRepo
	Settings    *data.SettingsRepo
	Freshness   core.FreshnessStore
	WeatherDocs *data.WeatherDocRepo
}

// buildObservability configures the metrics sink. A disabled or unreachable StatsD endpoint
// yields a client that drops every metric.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	metricsSink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Tags:    cfg.Metrics.Tags,
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		metricsSink, _ = statsd.NewClient(statsd.Config{Logger: obsLogger})
	}

	return ObservabilityContainer{
		MetricsSink:    metricsSink,
		MetricsConfig:  cfg.Metrics,
		NotifierConfig: cfg.Notifications,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps, models []model.ForecastModel) *serviceRepositories {
	cfg := deps.Config
	repos := &serviceRepositories{
		Jobs:        data.NewJobRepo(deps.DB, data.RepoConfig{Logger: deps.Logger}),
		Locations:   data.NewLocationRepo(deps.DB),
		AdminEvents: data.NewAdminEventRepo(deps.DB, nil),
		Settings: data.NewSettingsRepo(deps.RedisClient, data.SettingsDefaults{
			CallsPerMinute: cfg.Queue.CallsPerMinute,
			Models:         models,
			Retry:          cfg.Fetch.RetryPolicy(),
		}),
		WeatherDocs: data.NewWeatherDocRepo(data.WeatherDocRepoOptions{
			Collection: deps.WeatherCollection,
			Logger:     deps.Logger,
		}),
	}
	if deps.RedisClient != nil {
		repos.Freshness = data.NewFreshnessRepo(deps.RedisClient)
	}
	return repos
}

// buildEventLogger wires the admin event fan-out: structured log, Postgres and, when
// configured, Slack for failure events.
func buildEventLogger(logger *slog.Logger, repo core.AdminEventRepository, cfg config.NotificationsConfig) *adminlog.Logger {
	sinks := []adminlog.SinkRegistration{
		{Name: "slog", Sink: adminlog.SlogSink{Logger: logger}},
		{Name: "postgres", Sink: adminlog.RepoSink{Repo: repo}},
	}
	if reg, ok := buildSlackSink(logger, cfg); ok {
		sinks = append(sinks, reg)
	}
	return adminlog.New(adminlog.Options{
		Logger:      logger,
		Sinks:       sinks,
		SinkTimeout: cfg.Timeout,
	})
}

func buildSlackSink(logger *slog.Logger, cfg config.NotificationsConfig) (adminlog.SinkRegistration, bool) {
	if !cfg.Enabled || !cfg.Slack.Enabled {
		return adminlog.SinkRegistration{}, false
	}
	client, err := slack.NewClient(slack.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		Channel:    cfg.Slack.Channel,
		Username:   cfg.Slack.Username,
		Timeout:    cfg.Timeout,
		RetryLimit: cfg.RetryLimit,
	})
	if err != nil {
		logger.Error("failed to configure slack notifications", "error", err)
		return adminlog.SinkRegistration{}, false
	}
	return adminlog.SinkRegistration{
		Name:  "slack",
		Sink:  client,
		Types: []string{model.AdminEventJobFailed, model.AdminEventFetchFailed},
	}, true
}

type queueRuntime struct {
	processor *jobrunner.Processor
	queue     *service.QueueService
}

func newQueueRuntime(cfg *config.AppConfig, repos *serviceRepositories, events core.AdminEventLogger, obs ObservabilityContainer, logger *slog.Logger) (queueRuntime, error) {
	timeouts, err := job.NewTimeoutPolicy(cfg.Queue.DefaultJobTimeout, cfg.Queue.MaxJobTimeout)
	if err != nil {
		return queueRuntime{}, fmt.Errorf("job timeout policy: %w", err)
	}
	gate := job.NewGate(repos.Settings)
	waiters := job.NewWaiterBridge()

	processor, err := jobrunner.NewProcessor(jobrunner.ProcessorOptions{
		Jobs:         repos.Jobs,
		Gate:         gate,
		Waiters:      waiters,
		Timeouts:     timeouts,
		Events:       events,
		Metrics:      obs.MetricsSink,
		Logger:       logger,
		RetryCeiling: cfg.Queue.RetryCeiling,
	})
	if err != nil {
		return queueRuntime{}, fmt.Errorf("create queue processor: %w", err)
	}

	queue, err := service.NewQueueService(service.QueueServiceOptions{
		Repo:    repos.Jobs,
		Gate:    gate,
		Waiters: processor.Waiters(),
		Kicker:  processor,
		Logger:  logger,
	})
	if err != nil {
		return queueRuntime{}, fmt.Errorf("create queue service: %w", err)
	}
	return queueRuntime{processor: processor, queue: queue}, nil
}

func newWeatherService(cfg *config.AppConfig, repos *serviceRepositories, events core.AdminEventLogger, obs ObservabilityContainer, logger *slog.Logger) (*service.WeatherService, error) {
	client := openmeteo.New(openmeteo.Options{
		Builder: weather.RequestBuilder{
			Endpoints: weather.Endpoints{
				Forecast:   cfg.Provider.ForecastURL,
				Historical: cfg.Provider.HistoricalURL,
			},
			Units: weather.UnitSystem(cfg.Provider.Units),
		},
		Sink:      repos.WeatherDocs,
		Timeout:   cfg.Provider.Timeout,
		UserAgent: cfg.Provider.UserAgent,
		Logger:    logger,
	})

	orchestrator, err := service.NewFetchOrchestrator(service.FetchOrchestratorOptions{
		Stores: service.FetchStores{
			Locations: repos.Locations,
			Settings:  repos.Settings,
			Freshness: repos.Freshness,
		},
		Fetcher: client,
		Events:  events,
		Metrics: obs.MetricsSink,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create fetch orchestrator: %w", err)
	}

	return service.NewWeatherService(service.WeatherServiceOptions{
		Runner:       orchestrator,
		ForwardDays:  cfg.Fetch.ForwardDays,
		BackfillDays: cfg.Fetch.BackfillDays,
		Logger:       logger,
	})
}

// NewServices wires repositories, the queue runtime and the weather services. The Postgres
// handle and the weather collection are required; without Redis, settings fall back to their
// configured defaults and no freshness markers are kept.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies and config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	if deps.WeatherCollection == nil {
		return ServiceContainer{}, errors.New("weather collection is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
		deps.Logger = logger
	}
	cfg := deps.Config

	models, err := cfg.Fetch.ParseModels()
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("parse model catalogue: %w", err)
	}

	observability := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(deps, models)

	indexCtx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()
	if err := repos.WeatherDocs.EnsureIndexes(indexCtx); err != nil {
		return ServiceContainer{}, err
	}

	events := buildEventLogger(logger, repos.AdminEvents, cfg.Observability.Notifications)

	queue, err := newQueueRuntime(cfg, repos, events, observability, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	weatherSvc, err := newWeatherService(cfg, repos, events, observability, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	return ServiceContainer{
		Queue:         queue.queue,
		Weather:       weatherSvc,
		Processor:     queue.processor,
		Settings:      repos.Settings,
		Locations:     repos.Locations,
		AdminEvents:   repos.AdminEvents,
		Events:        events,
		Observability: observability,
	}, nil
}
