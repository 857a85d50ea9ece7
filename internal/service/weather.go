package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/domain/weather"
	apperrors "github.com/slopecast/slopecast-api/internal/errors"
)

// Default windows used when callers leave them unset.
const (
	DefaultBackfillDays = 7
	DefaultForwardDays  = weather.ProviderHorizonDays
)

// BatchRunner executes one fetch batch. *FetchOrchestrator implements it.
type BatchRunner interface {
	Run(ctx context.Context, req FetchRequest) (*model.FetchReport, error)
}

var _ BatchRunner = (*FetchOrchestrator)(nil)

// FetchAllOptions selects a batch. Start and End, when both set, request explicit calendar
// days; otherwise the batch looks ForwardDays ahead.
type FetchAllOptions struct {
	Context     model.FetchContext
	LocationIDs []string
	Start       time.Time
	End         time.Time
	Force       bool
}

// WeatherServiceOptions groups dependencies for WeatherService.
type WeatherServiceOptions struct {
	Runner       BatchRunner      // Required
	ForwardDays  int              // Optional: defaults to DefaultForwardDays
	BackfillDays int              // Optional: defaults to DefaultBackfillDays
	Now          func() time.Time // Optional
	Logger       *slog.Logger     // Optional
}

// WeatherService exposes the batch entry points used by the CLI, the HTTP surface and the
// forecast refresher.
type WeatherService struct {
	runner       BatchRunner
	forwardDays  int
	backfillDays int
	now          func() time.Time
	logger       *slog.Logger
}

// NewWeatherService constructs a WeatherService.
func NewWeatherService(opts WeatherServiceOptions) (*WeatherService, error) {
	if opts.Runner == nil {
		return nil, errors.New("batch runner is required")
	}
	forward := opts.ForwardDays
	if forward <= 0 {
		forward = DefaultForwardDays
	}
	backfill := opts.BackfillDays
	if backfill <= 0 {
		backfill = DefaultBackfillDays
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherService{
		runner:       opts.Runner,
		forwardDays:  forward,
		backfillDays: backfill,
		now:          now,
		logger:       logger.With("component", "weather_service"),
	}, nil
}

// FetchAllWeather runs a batch for every location, or only opts.LocationIDs. An empty
// context means manual.
func (s *WeatherService) FetchAllWeather(ctx context.Context, opts FetchAllOptions) (*model.FetchReport, error) {
	fc := opts.Context
	if fc == "" {
		fc = model.FetchContextManual
	}
	if !fc.Valid() {
		return nil, apperrors.ValidationField("context", fmt.Sprintf("unknown fetch context %q", fc))
	}
	req := FetchRequest{
		Context:     fc,
		LocationIDs: opts.LocationIDs,
		Force:       opts.Force,
	}

	switch {
	case !opts.Start.IsZero() && !opts.End.IsZero():
		window, err := model.NewDateWindow(opts.Start, opts.End)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid date window")
		}
		req.Window = window
	case !opts.Start.IsZero() || !opts.End.IsZero():
		return nil, apperrors.Validation("start and end must be given together")
	case fc == model.FetchContextBackfill:
		return nil, apperrors.Validation("backfill requires a start and end date")
	default:
		req.ForwardDays = s.forwardDays
	}

	s.logger.InfoContext(ctx, "weather batch requested",
		"context", req.Context,
		"locations", len(req.LocationIDs),
		"force", req.Force,
	)
	return s.runner.Run(ctx, req)
}

// BackfillAllWeather fetches the daysBack days before today for every location.
func (s *WeatherService) BackfillAllWeather(ctx context.Context, daysBack int) (*model.FetchReport, error) {
	return s.Backfill(ctx, nil, daysBack)
}

// BackfillLocations fetches the default backfill window for the given locations.
func (s *WeatherService) BackfillLocations(ctx context.Context, ids []string) (*model.FetchReport, error) {
	if len(ids) == 0 {
		return nil, apperrors.ValidationField("location_ids", "at least one location id is required")
	}
	return s.Backfill(ctx, ids, s.backfillDays)
}

// FetchForecastLocations refreshes forward forecasts. Models fetched within their refresh
// interval are skipped unless force is set.
func (s *WeatherService) FetchForecastLocations(ctx context.Context, ids []string, force bool) (*model.FetchReport, error) {
	return s.FetchAllWeather(ctx, FetchAllOptions{
		Context:     model.FetchContextForecast,
		LocationIDs: ids,
		Force:       force,
	})
}

// Backfill fetches the daysBack days before today for the given locations, or all of them
// when ids is empty.
func (s *WeatherService) Backfill(ctx context.Context, ids []string, daysBack int) (*model.FetchReport, error) {
	if daysBack <= 0 {
		return nil, apperrors.Validationf("days back must be positive, got %d", daysBack)
	}
	today := model.TruncateDay(s.now())
	return s.FetchAllWeather(ctx, FetchAllOptions{
		Context:     model.FetchContextBackfill,
		LocationIDs: ids,
		Start:       today.AddDate(0, 0, -daysBack),
		End:         today.AddDate(0, 0, -1),
	})
}
