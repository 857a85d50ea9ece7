package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the admin HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeQueue runs the rate-limited job queue processor.
	ServiceModeQueue ServiceMode = "queue"
	// ServiceModeFetcher runs the periodic forecast refresher.
	ServiceModeFetcher ServiceMode = "fetcher"
	// ServiceModeReaper runs the retention sweep.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeQueue,
		ServiceModeFetcher,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeQueue, ServiceModeFetcher, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, queue, fetcher, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// QueueConfig contains queue processor configuration.
type QueueConfig struct {
	// CallsPerMinute is the default dispatch budget; the runtime value lives in the settings store.
	CallsPerMinute float64 `env:"CALLS_PER_MINUTE" envDefault:"30"`

	// RetryCeiling is the number of retries allowed after a job's first attempt.
	RetryCeiling int `env:"RETRY_CEILING" envDefault:"2"`

	// DefaultJobTimeout applies to jobs enqueued without a timeout.
	DefaultJobTimeout time.Duration `env:"DEFAULT_JOB_TIMEOUT" envDefault:"10s"`

	// MaxJobTimeout caps per-job timeouts.
	MaxJobTimeout time.Duration `env:"MAX_JOB_TIMEOUT" envDefault:"2m"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.CallsPerMinute < 0 {
		q.CallsPerMinute = 0
	}
	if q.RetryCeiling < 0 {
		q.RetryCeiling = 0
	}
	if q.DefaultJobTimeout <= 0 {
		q.DefaultJobTimeout = 10 * time.Second
	}
	if q.MaxJobTimeout < q.DefaultJobTimeout {
		q.MaxJobTimeout = q.DefaultJobTimeout
	}
}

// FetchConfig contains weather fetch orchestration configuration.
type FetchConfig struct {
	// Models is the default model catalogue as comma-separated
	// id:provider_model:max_days:refresh_every entries.
	Models string `env:"MODELS" envDefault:"gfs:gfs_seamless:16:3h,ecmwf:ecmwf_ifs025:15:6h,icon:icon_seamless:7:3h"`

	// ForwardDays is the forecast horizon requested for forecast fetches before per-model clamping.
	ForwardDays int `env:"FORWARD_DAYS" envDefault:"16"`

	// BackfillDays is the default number of past days for backfills.
	BackfillDays int `env:"BACKFILL_DAYS" envDefault:"7"`

	// RetryAttempts is the default per-unit attempt limit.
	RetryAttempts int `env:"RETRY_ATTEMPTS" envDefault:"3"`

	// RetryBackoff is the linear backoff base between unit attempts.
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"2s"`

	// ForecastInterval is how often the fetcher service runs a freshness-gated forecast refresh.
	ForecastInterval time.Duration `env:"FORECAST_INTERVAL" envDefault:"30m"`

	// RefreshAtStart runs a forecast refresh as soon as the fetcher service starts.
	RefreshAtStart bool `env:"REFRESH_AT_START" envDefault:"true"`
}

// Sanitize applies guardrails to fetch configuration values.
func (f *FetchConfig) Sanitize() {
	if f.ForwardDays < 1 {
		f.ForwardDays = 1
	}
	if f.BackfillDays < 1 {
		f.BackfillDays = 1
	}
	if f.RetryAttempts < 1 {
		f.RetryAttempts = 1
	}
	if f.RetryBackoff < 0 {
		f.RetryBackoff = 0
	}
	if f.ForecastInterval < time.Minute {
		f.ForecastInterval = time.Minute
	}
}

// RetryPolicy returns the configured unit retry policy.
func (f *FetchConfig) RetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{MaxAttempts: f.RetryAttempts, BackoffBase: f.RetryBackoff}
}

// ParseModels decodes the Models catalogue. Every listed model is enabled.
func (f *FetchConfig) ParseModels() ([]model.ForecastModel, error) {
	return ParseModelCatalog(f.Models)
}

// ParseModelCatalog parses id:provider_model:max_days:refresh_every entries.
func ParseModelCatalog(raw string) ([]model.ForecastModel, error) {
	out := make([]model.ForecastModel, 0)
	seen := make(map[string]bool)
	for entry := range strings.SplitSeq(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid model entry %q: want id:provider_model:max_days:refresh_every", entry)
		}
		id := strings.TrimSpace(parts[0])
		provider := strings.TrimSpace(parts[1])
		if id == "" || provider == "" {
			return nil, fmt.Errorf("invalid model entry %q: id and provider model are required", entry)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate model id %q", id)
		}
		days, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || days < 1 {
			return nil, fmt.Errorf("invalid max_days in model entry %q", entry)
		}
		refresh, err := time.ParseDuration(strings.TrimSpace(parts[3]))
		if err != nil || refresh < 0 {
			return nil, fmt.Errorf("invalid refresh_every in model entry %q", entry)
		}
		seen[id] = true
		out = append(out, model.ForecastModel{
			ID:              id,
			ProviderModel:   provider,
			MaxForecastDays: days,
			RefreshEvery:    refresh,
			Enabled:         true,
		})
	}
	if len(out) == 0 {
		return nil, errors.New("at least one forecast model must be configured")
	}
	return out, nil
}

// ProviderConfig contains weather provider configuration.
type ProviderConfig struct {
	ForecastURL   string        `env:"FORECAST_URL"   envDefault:"https://api.open-meteo.com/v1/forecast"`
	HistoricalURL string        `env:"HISTORICAL_URL" envDefault:"https://historical-forecast-api.open-meteo.com/v1/forecast"`
	Units         string        `env:"UNITS"          envDefault:"imperial"`
	Timeout       time.Duration `env:"TIMEOUT"        envDefault:"10s"`
	UserAgent     string        `env:"USER_AGENT"     envDefault:"slopecast-api"`
}

// Sanitize applies guardrails to provider configuration values.
func (p *ProviderConfig) Sanitize() {
	p.Units = strings.ToLower(strings.TrimSpace(p.Units))
	if p.Units != "metric" {
		p.Units = "imperial"
	}
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
}

// ReaperConfig contains retention sweep configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1h"`

	// JobMaxAge is how long done and error jobs are kept.
	JobMaxAge time.Duration `env:"REAPER_JOB_MAX_AGE" envDefault:"168h"` // 7 days

	// EventMaxAge is how long admin events are kept.
	EventMaxAge time.Duration `env:"REAPER_EVENT_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to delete per statement.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.JobMaxAge < 1*time.Hour {
		r.JobMaxAge = 1 * time.Hour
	}
	if r.EventMaxAge < 1*time.Hour {
		r.EventMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
