package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "http and queue",
			input:    "http,queue",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeQueue: true},
		},
		{
			name:  "all services with spaces",
			input: " http , queue , fetcher , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:    true,
				ServiceModeQueue:   true,
				ServiceModeFetcher: true,
				ServiceModeReaper:  true,
			},
		},
		{
			name:     "duplicate services",
			input:    "queue,queue",
			expected: map[ServiceMode]bool{ServiceModeQueue: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: ",,", expectError: true},
		{name: "invalid service", input: "http,scheduler", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAppConfig_Enabled(t *testing.T) {
	cfg := AppConfig{Services: "queue,reaper"}
	assert.False(t, cfg.Enabled(ServiceModeHTTP))
	assert.True(t, cfg.Enabled(ServiceModeQueue))
	assert.False(t, cfg.Enabled(ServiceModeFetcher))
	assert.True(t, cfg.Enabled(ServiceModeReaper))

	invalid := AppConfig{Services: "bogus"}
	assert.False(t, invalid.Enabled(ServiceModeHTTP))
	assert.False(t, invalid.Enabled(ServiceModeQueue))
}

func TestAppConfig_EnabledServices(t *testing.T) {
	tests := []struct {
		name     string
		services string
		want     []ServiceMode
		wantErr  bool
	}{
		{name: "startup order", services: "reaper,http,queue", want: []ServiceMode{ServiceModeHTTP, ServiceModeQueue, ServiceModeReaper}},
		{name: "fetcher only", services: "fetcher", want: []ServiceMode{ServiceModeFetcher}},
		{name: "invalid", services: "http,bogus", wantErr: true},
		{name: "empty", services: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}
			got, err := cfg.EnabledServices()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppConfig_SanitizeDevMode(t *testing.T) {
	t.Setenv("APP_ENV", "Development")
	cfg := AppConfig{LogLevel: " INFO "}
	cfg.Sanitize()
	assert.True(t, cfg.IsDev)
	assert.Equal(t, "debug", cfg.LogLevel)

	t.Setenv("APP_ENV", "production")
	cfg = AppConfig{LogLevel: "Warn"}
	cfg.Sanitize()
	assert.False(t, cfg.IsDev)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVICES", "reaper")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled(ServiceModeReaper))
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	assert.Len(t, modes, 4)
	for _, m := range modes {
		_, err := ParseServices(string(m))
		assert.NoError(t, err, m)
	}
}

func TestAppConfig_ParseEnvDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, "http,queue", cfg.Services)
	assert.InDelta(t, 30, cfg.Queue.CallsPerMinute, 0)
	assert.Equal(t, 2, cfg.Queue.RetryCeiling)
	assert.Equal(t, 10*time.Second, cfg.Queue.DefaultJobTimeout)
	assert.Equal(t, 16, cfg.Fetch.ForwardDays)
	assert.Equal(t, 3, cfg.Fetch.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Fetch.RetryBackoff)
	assert.Equal(t, 168*time.Hour, cfg.Reaper.JobMaxAge)
	assert.Equal(t, "weather_hourly", cfg.Mongo.Collection)
	assert.Equal(t, "imperial", cfg.Provider.Units)

	models, err := cfg.Fetch.ParseModels()
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, "gfs", models[0].ID)
	assert.Equal(t, "gfs_seamless", models[0].ProviderModel)
	assert.Equal(t, 16, models[0].MaxForecastDays)
	assert.Equal(t, 3*time.Hour, models[0].RefreshEvery)
}

func TestAppConfig_ParseEnvOverrides(t *testing.T) {
	t.Setenv("SERVICES", "fetcher")
	t.Setenv("QUEUE_CALLS_PER_MINUTE", "12.5")
	t.Setenv("FETCH_FORWARD_DAYS", "7")
	t.Setenv("FETCH_MODELS", "hrrr:ncep_hrrr_conus:2:1h")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("PROVIDER_UNITS", "METRIC")
	t.Setenv("REAPER_INTERVAL", "10s")
	t.Setenv("OBSERVABILITY_METRICS_TAGS", "env:prod,region:eu-west")
	t.Setenv("DB_MAX_OPEN_CONNS", "40")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.True(t, cfg.Enabled(ServiceModeFetcher))
	assert.InDelta(t, 12.5, cfg.Queue.CallsPerMinute, 0)
	assert.Equal(t, 7, cfg.Fetch.ForwardDays)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, "metric", cfg.Provider.Units)
	assert.Equal(t, time.Minute, cfg.Reaper.Interval, "interval is floored")
	assert.Equal(t, map[string]string{"env": "prod", "region": "eu-west"}, cfg.Observability.Metrics.Tags)
	assert.Equal(t, 40, cfg.Postgres.MaxOpenConns)

	models, err := cfg.Fetch.ParseModels()
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "ncep_hrrr_conus", models[0].ProviderModel)
}

func TestParseModelCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"too few parts", "gfs:gfs_seamless:16"},
		{"bad days", "gfs:gfs_seamless:zero:3h"},
		{"non-positive days", "gfs:gfs_seamless:0:3h"},
		{"bad duration", "gfs:gfs_seamless:16:soon"},
		{"missing id", ":gfs_seamless:16:3h"},
		{"duplicate", "gfs:a:1:1h,gfs:b:1:1h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelCatalog(tt.raw)
			require.Error(t, err)
		})
	}
}

func TestQueueConfig_Sanitize(t *testing.T) {
	q := QueueConfig{CallsPerMinute: -1, RetryCeiling: -3, MaxJobTimeout: time.Second, DefaultJobTimeout: 0}
	q.Sanitize()
	assert.Zero(t, q.CallsPerMinute)
	assert.Zero(t, q.RetryCeiling)
	assert.Equal(t, 10*time.Second, q.DefaultJobTimeout)
	assert.Equal(t, 10*time.Second, q.MaxJobTimeout)
}

func TestReaperConfig_Sanitize(t *testing.T) {
	r := ReaperConfig{BatchSize: 50000}
	r.Sanitize()
	assert.Equal(t, time.Minute, r.Interval)
	assert.Equal(t, time.Hour, r.JobMaxAge)
	assert.Equal(t, 10000, r.BatchSize)
}

func TestMetricsConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name        string
		in          MetricsConfig
		wantEnabled bool
		wantAddr    string
		wantPrefix  string
	}{
		{name: "blank address disables", in: MetricsConfig{Enabled: true, StatsdAddress: "   ", Prefix: "slopecast"}, wantPrefix: "slopecast"},
		{name: "address trimmed", in: MetricsConfig{Enabled: true, StatsdAddress: " 127.0.0.1:8125 ", Prefix: ".ops.slopecast."}, wantEnabled: true, wantAddr: "127.0.0.1:8125", wantPrefix: "ops.slopecast"},
		{name: "disabled stays disabled", in: MetricsConfig{StatsdAddress: "statsd:8125"}, wantAddr: "statsd:8125"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.Sanitize()
			assert.Equal(t, tt.wantEnabled, cfg.IsEnabled())
			assert.Equal(t, tt.wantAddr, cfg.StatsdAddress)
			assert.Equal(t, tt.wantPrefix, cfg.Prefix)
		})
	}
}

func TestNotificationsConfig_Sanitize(t *testing.T) {
	cfg := NotificationsConfig{
		Enabled: false,
		Slack:   SlackConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/x"},
	}
	cfg.Sanitize()
	assert.False(t, cfg.Slack.Enabled, "disabled notifications disable slack")

	cfg = NotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack:      SlackConfig{Enabled: true, WebhookURL: "  "},
	}
	cfg.Sanitize()
	assert.False(t, cfg.Slack.Enabled, "missing webhook disables slack")
	assert.Zero(t, cfg.RetryLimit)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, defaultSlackUsername, cfg.Slack.Username)

	cfg = NotificationsConfig{
		Enabled: true,
		Timeout: time.Second,
		Slack:   SlackConfig{Enabled: true, WebhookURL: " https://hooks.slack.com/x ", Channel: " #ops "},
	}
	cfg.Sanitize()
	assert.True(t, cfg.Slack.Enabled)
	assert.Equal(t, "https://hooks.slack.com/x", cfg.Slack.WebhookURL)
	assert.Equal(t, "#ops", cfg.Slack.Channel)
	assert.Equal(t, time.Second, cfg.Timeout)
}
