// Package openmeteo fetches weather for a single fetch unit from the Open-Meteo API and hands
// the raw response to the weather document sink.
package openmeteo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/domain/weather"
)

// DefaultTimeout bounds every provider call.
const DefaultTimeout = 10 * time.Second

const maxErrorBodyChars = 512

// Stage names the step of a unit fetch that failed.
type Stage string

const (
	StageBuild   Stage = "build"
	StageRequest Stage = "request"
	StageStore   Stage = "store"
)

// ProviderError carries the request diagnostics of a failed unit fetch.
type ProviderError struct {
	URL        string
	Model      string
	Elevation  string
	Stage      Stage
	StatusCode int
	Context    model.FetchContext
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider fetch model=%s elevation=%s context=%s status=%d: %v",
			e.Model, e.Elevation, e.Context, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider fetch model=%s elevation=%s context=%s: %v", e.Model, e.Elevation, e.Context, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatus implements errors.StatusCoder. Zero means no response was received.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

// Retryable reports whether the failure is worth another attempt. A request that cannot be
// built never is, a store failure always is. Provider calls retry on transport errors,
// throttling and server errors.
func (e *ProviderError) Retryable() bool {
	switch e.Stage {
	case StageBuild:
		return false
	case StageStore:
		return true
	}
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrEmptyBody is returned when the provider answers 2xx without a JSON document.
var ErrEmptyBody = errors.New("provider returned an empty or non-JSON body")

// Options configures a Client.
type Options struct {
	Builder   weather.RequestBuilder
	Sink      core.WeatherDocSink
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger
}

// Client performs unit fetches.
type Client struct {
	http    *resty.Client
	builder weather.RequestBuilder
	sink    core.WeatherDocSink
	logger  *slog.Logger
}

// New constructs a Client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "slopecast-api"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", ua)

	return &Client{
		http:    rc,
		builder: opts.Builder,
		sink:    opts.Sink,
		logger:  logger.With("component", "openmeteo"),
	}
}

// FetchUnit performs one request for unit, stores the response, and reports day coverage.
func (c *Client) FetchUnit(ctx context.Context, unit model.FetchUnit) (model.UnitSummary, error) {
	summary := model.UnitSummary{
		ModelID:    unit.Model.ID,
		Elevation:  unit.Elevation.Name,
		ElevationM: unit.Elevation.Meters,
	}
	fail := func(stage Stage, url string, status int, err error) (model.UnitSummary, error) {
		return summary, &ProviderError{
			URL:        url,
			Model:      unit.Model.ID,
			Elevation:  unit.Elevation.Name,
			Stage:      stage,
			StatusCode: status,
			Context:    unit.Context,
			Err:        err,
		}
	}

	req, err := c.builder.Build(unit)
	if err != nil {
		return fail(StageBuild, "", 0, fmt.Errorf("build request: %w", err))
	}
	summary.RequestedDays = req.RequestedDays
	target := req.URL()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(req.Query).
		Get(req.BaseURL)
	if err != nil {
		return fail(StageRequest, target, 0, err)
	}
	body := resp.Body()
	if resp.IsError() {
		return fail(StageRequest, target, resp.StatusCode(), describeFailure(body))
	}
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return fail(StageRequest, target, resp.StatusCode(), ErrEmptyBody)
	}

	summary.ActualDays = int(gjson.GetBytes(body, "daily.time.#").Int())

	if c.sink != nil {
		written, err := c.sink.UpsertWeather(ctx, core.UpsertWeatherParams{
			LocationID: unit.Location.ID,
			ModelID:    unit.Model.ID,
			Elevation:  unit.Elevation.Name,
			Context:    unit.Context,
			Body:       body,
		})
		if err != nil {
			return fail(StageStore, target, resp.StatusCode(), fmt.Errorf("store weather: %w", err))
		}
		c.logger.DebugContext(ctx, "weather stored",
			"location_id", unit.Location.ID,
			"model", unit.Model.ID,
			"elevation", unit.Elevation.Name,
			"records", written,
			"duration_ms", resp.Time().Milliseconds(),
		)
	}
	return summary, nil
}

// describeFailure prefers the provider's reason field over the raw body.
func describeFailure(body []byte) error {
	if reason := gjson.GetBytes(body, "reason"); reason.Exists() && reason.String() != "" {
		return errors.New(reason.String())
	}
	s := string(body)
	if len(s) > maxErrorBodyChars {
		s = s[:maxErrorBodyChars]
	}
	return fmt.Errorf("body=%q", s)
}
