package model

import (
	"errors"
	"fmt"
	"time"
)

// FetchContext distinguishes why a weather fetch batch runs.
type FetchContext string

const (
	// FetchContextForecast refreshes forward-looking forecasts on a cadence.
	FetchContextForecast FetchContext = "forecast"
	// FetchContextBackfill fills historical days.
	FetchContextBackfill FetchContext = "backfill"
	// FetchContextManual is an operator-triggered fetch.
	FetchContextManual FetchContext = "manual"
)

// Valid returns true if the FetchContext is known.
func (c FetchContext) Valid() bool {
	return c == FetchContextForecast || c == FetchContextBackfill || c == FetchContextManual
}

// MarksFreshness reports whether a successful batch in this context advances model freshness markers.
func (c FetchContext) MarksFreshness() bool {
	return c == FetchContextForecast || c == FetchContextManual
}

// ElevationBand is a named elevation of a location (base, mid, top).
type ElevationBand struct {
	Name   string  `json:"name"   db:"name"`
	Meters float64 `json:"meters" db:"meters"`
}

// Location is a ski resort with coordinates and its available elevation bands.
type Location struct {
	ID         string          `json:"id"         db:"id"`
	Name       string          `json:"name"       db:"name"`
	Latitude   float64         `json:"latitude"   db:"latitude"`
	Longitude  float64         `json:"longitude"  db:"longitude"`
	Timezone   string          `json:"timezone"   db:"timezone"`
	Elevations []ElevationBand `json:"elevations"`
}

// ForecastModel describes one provider forecast model and its limits.
type ForecastModel struct {
	ID              string        `json:"id"`
	ProviderModel   string        `json:"provider_model"`
	MaxForecastDays int           `json:"max_forecast_days"`
	RefreshEvery    time.Duration `json:"refresh_every"`
	Enabled         bool          `json:"enabled"`
}

// DateWindow is an inclusive range of calendar days.
type DateWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ErrInvalidWindow is returned when a window ends before it starts.
var ErrInvalidWindow = errors.New("date window end is before start")

// NewDateWindow truncates both ends to calendar days and validates ordering.
func NewDateWindow(start, end time.Time) (DateWindow, error) {
	w := DateWindow{Start: TruncateDay(start), End: TruncateDay(end)}
	if w.End.Before(w.Start) {
		return DateWindow{}, fmt.Errorf("%w: %s > %s", ErrInvalidWindow, w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
	}
	return w, nil
}

// Days returns the number of calendar days covered, inclusive.
func (w DateWindow) Days() int {
	if w.Start.IsZero() || w.End.IsZero() {
		return 0
	}
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// IsZero reports whether no explicit window was set.
func (w DateWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// TruncateDay returns midnight UTC of t's calendar day.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FetchUnit is one (location, model, elevation) combination for a window and context.
type FetchUnit struct {
	Location    Location
	Model       ForecastModel
	Elevation   ElevationBand
	Window      DateWindow
	ForwardDays int
	Context     FetchContext
}

// UnitSummary reports what a unit fetch returned.
type UnitSummary struct {
	ModelID       string  `json:"model"`
	Elevation     string  `json:"elevation"`
	ElevationM    float64 `json:"elevation_m"`
	RequestedDays int     `json:"requested_days"`
	ActualDays    int     `json:"actual_days"`
}

// CoverageShort reports whether the provider returned fewer days than requested.
func (s UnitSummary) CoverageShort() bool {
	return s.ActualDays < s.RequestedDays
}

// FetchReport summarises one orchestrated batch.
type FetchReport struct {
	Context     FetchContext      `json:"context"`
	Locations   int               `json:"locations"`
	UnitsTotal  int               `json:"units_total"`
	UnitsFailed int               `json:"units_failed"`
	FreshModels []string          `json:"fresh_models"`
	Skipped     []string          `json:"skipped_models,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    time.Duration     `json:"duration"`
}
