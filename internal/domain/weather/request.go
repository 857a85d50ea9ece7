// Package weather turns fetch units into provider requests. It performs no I/O.
package weather

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// ProviderHorizonDays is the provider's absolute forecast horizon, used when a model does not
// declare its own.
const ProviderHorizonDays = 16

// UnitSystem selects the measurement units requested from the provider.
type UnitSystem string

const (
	// UnitsImperial requests fahrenheit, mph and inches.
	UnitsImperial UnitSystem = "imperial"
	// UnitsMetric requests the provider defaults (celsius, km/h, mm).
	UnitsMetric UnitSystem = "metric"
)

// Valid returns true if the UnitSystem is known.
func (u UnitSystem) Valid() bool {
	return u == UnitsImperial || u == UnitsMetric
}

// DefaultHourlyFields are requested for every unit unless overridden.
var DefaultHourlyFields = []string{
	"temperature_2m",
	"apparent_temperature",
	"precipitation",
	"snowfall",
	"snow_depth",
	"freezing_level_height",
	"cloud_cover",
	"wind_speed_10m",
	"wind_gusts_10m",
	"wind_direction_10m",
	"weather_code",
}

// DefaultDailyFields are requested for every unit unless overridden.
var DefaultDailyFields = []string{
	"weather_code",
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_sum",
	"snowfall_sum",
	"wind_speed_10m_max",
}

// Endpoints are the provider base URLs.
type Endpoints struct {
	Forecast   string
	Historical string
}

// RequestBuilder builds provider requests. Its zero value is not usable; set Endpoints.
type RequestBuilder struct {
	Endpoints    Endpoints
	Units        UnitSystem
	HourlyFields []string
	DailyFields  []string
}

// ProviderRequest is a fully described outbound GET.
type ProviderRequest struct {
	BaseURL       string
	Query         url.Values
	RequestedDays int
}

// URL returns the request target. Query keys are sorted so equal inputs give equal URLs.
func (r ProviderRequest) URL() string {
	return r.BaseURL + "?" + r.Query.Encode()
}

// Validation errors returned by Build.
var (
	ErrMissingLocation = errors.New("location id is required")
	ErrBadCoordinates  = errors.New("coordinates out of range")
	ErrMissingModel    = errors.New("provider model is required")
	ErrMissingEndpoint = errors.New("provider endpoint is required")
)

// Build describes the request for one fetch unit. A unit with a window requests explicit
// start and end dates; otherwise it requests ForwardDays clamped to the model horizon.
// Backfill windows use the historical endpoint.
func (b RequestBuilder) Build(unit model.FetchUnit) (ProviderRequest, error) {
	loc := unit.Location
	if strings.TrimSpace(loc.ID) == "" {
		return ProviderRequest{}, ErrMissingLocation
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return ProviderRequest{}, fmt.Errorf("%w: %v,%v", ErrBadCoordinates, loc.Latitude, loc.Longitude)
	}
	if strings.TrimSpace(unit.Model.ProviderModel) == "" {
		return ProviderRequest{}, fmt.Errorf("%w: model %q", ErrMissingModel, unit.Model.ID)
	}

	base := b.Endpoints.Forecast
	if unit.Context == model.FetchContextBackfill && !unit.Window.IsZero() && b.Endpoints.Historical != "" {
		base = b.Endpoints.Historical
	}
	if base == "" {
		return ProviderRequest{}, ErrMissingEndpoint
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	q.Set("elevation", strconv.FormatFloat(unit.Elevation.Meters, 'f', -1, 64))
	q.Set("models", unit.Model.ProviderModel)
	q.Set("hourly", strings.Join(fieldsOr(b.HourlyFields, DefaultHourlyFields), ","))
	q.Set("daily", strings.Join(fieldsOr(b.DailyFields, DefaultDailyFields), ","))
	q.Set("timezone", timezoneOr(loc.Timezone))
	q.Set("timeformat", "unixtime")
	if b.Units != UnitsMetric {
		q.Set("temperature_unit", "fahrenheit")
		q.Set("wind_speed_unit", "mph")
		q.Set("precipitation_unit", "inch")
	}

	req := ProviderRequest{BaseURL: base, Query: q}
	if !unit.Window.IsZero() {
		if unit.Window.End.Before(unit.Window.Start) {
			return ProviderRequest{}, model.ErrInvalidWindow
		}
		q.Set("start_date", unit.Window.Start.Format(time.DateOnly))
		q.Set("end_date", unit.Window.End.Format(time.DateOnly))
		req.RequestedDays = unit.Window.Days()
		return req, nil
	}

	days := ClampForecastDays(unit.ForwardDays, unit.Model.MaxForecastDays)
	q.Set("forecast_days", strconv.Itoa(days))
	req.RequestedDays = days
	return req, nil
}

// ClampForecastDays limits requested to [1, horizon]. A non-positive horizon falls back to
// ProviderHorizonDays.
func ClampForecastDays(requested, horizon int) int {
	if horizon <= 0 || horizon > ProviderHorizonDays {
		horizon = ProviderHorizonDays
	}
	return min(max(requested, 1), horizon)
}

func fieldsOr(fields, fallback []string) []string {
	if len(fields) == 0 {
		return fallback
	}
	return fields
}

func timezoneOr(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}
