package model

import "time"

// Admin event types emitted by the queue and the fetch orchestrator.
const (
	AdminEventJobFailed      = "queue.job_failed"
	AdminEventFetchCompleted = "weather.fetch_completed"
	AdminEventFetchFailed    = "weather.fetch_failed"
)

// AdminEvent is an operator-facing log entry.
type AdminEvent struct {
	ID         int64          `json:"id,omitempty"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// RetryPolicy holds the tunables for unit-level fetch retries.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BackoffBase time.Duration `json:"backoff_base"`
}

// Backoff returns the linear delay applied after the given failed attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * p.BackoffBase
}
