// Package reaper runs the retention sweep against Postgres.
package reaper

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slopecast/slopecast-api/config"
	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/data"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
	"github.com/slopecast/slopecast-api/internal/service"
)

// RunnerOptions configures a Runner. Repo and Events override the Postgres repositories
// built from DB; DB may be nil only when both are given.
type RunnerOptions struct {
	DB      *sql.DB
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink

	Repo   core.ReaperRepository
	Events service.EventPruner
}

// Runner owns a ReaperService wired to the job and admin event tables.
type Runner struct {
	*service.ReaperService
}

// NewRunner wires the reaper service.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && (opts.Repo == nil || opts.Events == nil) {
		return nil, errors.New("database connection is required")
	}
	if opts.Repo == nil {
		opts.Repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	if opts.Events == nil {
		opts.Events = data.NewAdminEventRepo(opts.DB, nil)
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    opts.Repo,
		Events:  opts.Events,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}
	return &Runner{ReaperService: svc}, nil
}
