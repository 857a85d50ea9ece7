package data

import (
	"database/sql"
	"errors"
	"log/slog"
)

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobIDRequired is returned when a job operation gets an empty id.
	ErrJobIDRequired = errors.New("job id is required")
)

// RepoConfig configures a JobRepo. Zero values mean the system clock and slog.Default.
type RepoConfig struct {
	Logger *slog.Logger
	Clock  Clock
}

// JobRepo is the Postgres-backed durable job queue. Claims use FOR UPDATE SKIP LOCKED, so
// any number of processors can share one table.
type JobRepo struct {
	DB     *sql.DB
	clock  Clock
	logger *slog.Logger
}

// NewJobRepo returns a JobRepo over db.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	r := &JobRepo{DB: db, clock: cfg.Clock, logger: cfg.Logger}
	if r.clock == nil {
		r.clock = SystemClock{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// jobColumns is the select list scanJob expects, in order.
const jobColumns = `id, kind, status, url, timeout_ms, attempts, next_run_at, started_at,
  finished_at, last_error, metadata, created_at, updated_at`

const qualifiedJobColumns = `j.id, j.kind, j.status, j.url, j.timeout_ms, j.attempts, j.next_run_at,
  j.started_at, j.finished_at, j.last_error, j.metadata, j.created_at, j.updated_at`
