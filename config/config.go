package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig is the process configuration, populated from environment variables by Load.
// Each concern lives in its own file:
//   - database.go: Postgres, Redis and MongoDB
//   - http.go: admin HTTP server
//   - services.go: service modes, queue, fetch, provider and reaper
//   - observability.go: metrics and notifications
type AppConfig struct {
	// IsDev switches to text logs. APP_ENV=dev or development also sets it.
	IsDev    bool   `env:"DEV" envDefault:"false"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Mongo    MongoConfig `envPrefix:"MONGO_"`

	HTTP HTTPConfig

	// Services is the comma separated list of modes this process runs.
	Services string `env:"SERVICES" envDefault:"http,queue"`

	Queue    QueueConfig    `envPrefix:"QUEUE_"`
	Fetch    FetchConfig    `envPrefix:"FETCH_"`
	Provider ProviderConfig `envPrefix:"PROVIDER_"`
	Reaper   ReaperConfig

	Observability ObservabilityConfig
}

// Load reads an optional .env file from the working directory, then parses the environment.
// Variables already set in the environment win over the file.
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env file: %w", err)
	}

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize clamps loaded values into their supported ranges.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Queue.Sanitize()
	c.Fetch.Sanitize()
	c.Provider.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	if !c.IsDev {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV"))) {
		case "dev", "development":
			c.IsDev = true
		}
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.IsDev && (c.LogLevel == "" || c.LogLevel == "info") {
		c.LogLevel = "debug"
	}
}

// EnabledServices returns the configured modes in startup order.
func (c *AppConfig) EnabledServices() ([]ServiceMode, error) {
	set, err := ParseServices(c.Services)
	if err != nil {
		return nil, err
	}
	out := make([]ServiceMode, 0, len(set))
	for _, mode := range ValidServiceModes() {
		if set[mode] {
			out = append(out, mode)
		}
	}
	return out, nil
}

// Enabled reports whether mode is configured. An unparsable list enables nothing.
func (c *AppConfig) Enabled(mode ServiceMode) bool {
	set, err := ParseServices(c.Services)
	return err == nil && set[mode]
}
