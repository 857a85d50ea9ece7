// Package model defines the core data types shared by the queue, the fetch orchestrator, and the stores.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobKind represents the kind of work a queued job performs.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobKindHTTP represents an outbound HTTP call executed by the queue processor.
	JobKindHTTP JobKind = "http"

	// JobStatusPending indicates a job is waiting to be claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusActive indicates a job is currently being executed.
	JobStatusActive JobStatus = "active"
	// JobStatusDone indicates a job has finished successfully.
	JobStatusDone JobStatus = "done"
	// JobStatusError indicates a job exhausted its retries.
	JobStatusError JobStatus = "error"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobKind to allow env parsing.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := JobKind(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*k = v
		return nil
	}
	return fmt.Errorf("invalid JobKind: %q", v)
}

// ErrNoJobsAvailable is returned when no job is due for claiming.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobKind is valid.
func (k JobKind) Valid() bool {
	return k == JobKindHTTP
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusActive || s == JobStatusDone || s == JobStatusError
}

// Terminal reports whether no further transition is possible from this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Job represents a queued unit of work.
type Job struct {
	ID         string          `json:"id"                    db:"id"`
	Kind       JobKind         `json:"kind"                  db:"kind"`
	Status     JobStatus       `json:"status"                db:"status"`
	URL        string          `json:"url"                   db:"url"`
	Timeout    time.Duration   `json:"timeout_ms"            db:"timeout_ms"`
	Attempts   int             `json:"attempts"              db:"attempts"`
	NextRunAt  time.Time       `json:"next_run_at"           db:"next_run_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"  db:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	LastError  *string         `json:"last_error,omitempty"  db:"last_error"`
	Metadata   json.RawMessage `json:"metadata"              db:"metadata"`
	CreatedAt  time.Time       `json:"created_at"            db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"            db:"updated_at"`
}

// MarshalJSON renders Timeout as milliseconds so the admin surface shows the configured value.
func (j Job) MarshalJSON() ([]byte, error) {
	type alias Job
	return json.Marshal(struct {
		alias
		Timeout int64 `json:"timeout_ms"`
	}{
		alias:   alias(j),
		Timeout: j.Timeout.Milliseconds(),
	})
}

// CreateJobRequest represents a request to enqueue a new job.
// ID is optional; callers that must know the id before the job becomes claimable set it.
type CreateJobRequest struct {
	ID            string          `json:"-"`
	Kind          JobKind         `json:"kind"`
	URL           string          `json:"url"`
	TimeoutMillis int             `json:"timeout_ms,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if r.ID != "" {
		if _, err := uuid.Parse(r.ID); err != nil {
			return errors.New("id must be a uuid")
		}
	}
	if !r.Kind.Valid() {
		return errors.New("invalid job kind")
	}
	if strings.TrimSpace(r.URL) == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	if u.Host == "" {
		return errors.New("url must be absolute")
	}
	if r.TimeoutMillis < 0 {
		return errors.New("timeout must be >= 0")
	}
	if len(r.Metadata) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(r.Metadata, &obj); err != nil {
			return errors.New("metadata must be a JSON object")
		}
	}
	return nil
}

// JobStats represents the number of jobs in each status.
type JobStats struct {
	Pending int `json:"pending"`
	Active  int `json:"active"`
	Done    int `json:"done"`
	Error   int `json:"error"`
}

// HTTPResult is the outcome of a successfully executed HTTP job.
type HTTPResult struct {
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          string            `json:"body"`
	BodyTruncated bool              `json:"body_truncated,omitempty"`
	Duration      time.Duration     `json:"duration"`
}

// QueueStatus is a read-only snapshot of the queue for operators.
type QueueStatus struct {
	CallsPerMinute float64    `json:"calls_per_minute"`
	IntervalMillis int64      `json:"interval_ms"`
	PendingCount   int        `json:"pending_count"`
	ActiveCount    int        `json:"active_count"`
	ActiveJob      *Job       `json:"active_job,omitempty"`
	Queue          []*Job     `json:"queue"`
	NextAllowedAt  *time.Time `json:"next_allowed_at,omitempty"`
}
