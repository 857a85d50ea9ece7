package core

import (
	"context"
	"time"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces, not on the concrete Postgres/Redis/Mongo adapters.

// JobRepository defines the durable job store used by the queue processor.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ClaimNextDue(ctx context.Context) (*model.Job, error)
	MarkDone(ctx context.Context, id string) (bool, error)
	MarkRetry(ctx context.Context, params MarkRetryParams) (bool, error)
	MarkError(ctx context.Context, id, errMsg string) (bool, error)
	CountByStatus(ctx context.Context) (*model.JobStats, error)
	ListPending(ctx context.Context, limit int) ([]*model.Job, error)
	FindActive(ctx context.Context) (*model.Job, error)
	// RecoverActive settles every job left active by a previous process. Jobs that already
	// used maxAttempts claims fail as interrupted; the rest go back to pending, due now.
	RecoverActive(ctx context.Context, maxAttempts int) (RecoverResult, error)
}

// RecoverResult counts what RecoverActive did.
type RecoverResult struct {
	Requeued int64
	Failed   int64
}

// MarkRetryParams groups parameters for MarkRetry to keep param count ≤3.
type MarkRetryParams struct {
	ID     string
	Delay  time.Duration
	ErrMsg string
}

// ReaperRepository defines retention operations on the job store.
type ReaperRepository interface {
	DeleteTerminalOlderThan(ctx context.Context, params DeleteTerminalParams) (int64, error)
}

// DeleteTerminalParams groups parameters for DeleteTerminalOlderThan.
type DeleteTerminalParams struct {
	Cutoff    time.Time
	BatchSize int
}

// AdminEventRepository persists operator-facing events.
type AdminEventRepository interface {
	Insert(ctx context.Context, event model.AdminEvent) error
	List(ctx context.Context, limit int) ([]model.AdminEvent, error)
	DeleteOlderThan(ctx context.Context, params DeleteTerminalParams) (int64, error)
}

// LocationRepository provides the locations a fetch batch fans out over.
type LocationRepository interface {
	// List returns all locations, or only those with the given ids when ids is non-empty.
	List(ctx context.Context, ids []string) ([]model.Location, error)
	Upsert(ctx context.Context, loc model.Location) error
}

// UpsertWeatherParams groups the inputs of a weather document upsert.
type UpsertWeatherParams struct {
	LocationID string
	ModelID    string
	Elevation  string
	Context    model.FetchContext
	Body       []byte
}

// WeatherDocSink accepts raw provider responses and upserts them idempotently
// keyed by (location, model, elevation, timestamp).
type WeatherDocSink interface {
	UpsertWeather(ctx context.Context, params UpsertWeatherParams) (int, error)
}

// FreshnessStore tracks when each forecast model was last fetched successfully.
type FreshnessStore interface {
	LastFetched(ctx context.Context, modelID string) (time.Time, bool, error)
	MarkFetched(ctx context.Context, modelID string, at time.Time) error
}

// SettingsProvider supplies runtime-tunable configuration. Implementations must not cache;
// callers read it on every use.
type SettingsProvider interface {
	CallsPerMinute(ctx context.Context) (float64, error)
	Models(ctx context.Context) ([]model.ForecastModel, error)
	RetryPolicy(ctx context.Context) (model.RetryPolicy, error)
}

// AdminEventLogger records operator-facing events. Implementations are best-effort and never
// return errors to the caller.
type AdminEventLogger interface {
	Log(ctx context.Context, event model.AdminEvent)
}

// UnitFetcher performs one provider call for a fetch unit and stores the result.
type UnitFetcher interface {
	FetchUnit(ctx context.Context, unit model.FetchUnit) (model.UnitSummary, error)
}
