package config

import (
	"strings"
	"time"
)

const defaultSlackUsername = "slopecast"

// ObservabilityConfig covers metric emission and outbound failure notifications.
type ObservabilityConfig struct {
	Metrics       MetricsConfig
	Notifications NotificationsConfig
}

// Sanitize normalises both halves.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// MetricsConfig points the StatsD client at an agent. Tags are attached to every metric and
// are given as "key:value,key:value".
type MetricsConfig struct {
	Enabled       bool              `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string            `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string            `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"slopecast"`
	Tags          map[string]string `env:"OBSERVABILITY_METRICS_TAGS"`
}

// Sanitize turns metrics off when no address is left after trimming.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	c.Enabled = c.Enabled && c.StatsdAddress != ""
}

// IsEnabled reports whether metrics should be sent.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// NotificationsConfig gates delivery of failure admin events to chat webhooks.
type NotificationsConfig struct {
	Enabled    bool          `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackConfig   `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
}

// Sanitize clamps timeouts and retries. Slack stays on only when notifications are on and a
// webhook is set.
func (c *NotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	s := &c.Slack
	s.WebhookURL = strings.TrimSpace(s.WebhookURL)
	s.Channel = strings.TrimSpace(s.Channel)
	if strings.TrimSpace(s.Username) == "" {
		s.Username = defaultSlackUsername
	}
	s.Enabled = s.Enabled && c.Enabled && s.WebhookURL != ""
}

// SlackConfig is an incoming-webhook target.
type SlackConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"slopecast"`
}
