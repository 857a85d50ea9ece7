// Package testutil provides testing utilities and helpers for the slopecast queue and fetch layers.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Kind:          model.JobKindHTTP,
			URL:           "https://api.example.com/v1/forecast",
			TimeoutMillis: 1000,
		},
	}
}

// WithURL sets the target URL.
func (b *JobRequestBuilder) WithURL(u string) *JobRequestBuilder {
	b.req.URL = u
	return b
}

// WithTimeout sets the per-job timeout.
func (b *JobRequestBuilder) WithTimeout(d time.Duration) *JobRequestBuilder {
	b.req.TimeoutMillis = int(d / time.Millisecond)
	return b
}

// WithMetadataString sets the job metadata from a string.
func (b *JobRequestBuilder) WithMetadataString(metadata string) *JobRequestBuilder {
	b.req.Metadata = json.RawMessage(metadata)
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// NewLocation builds a location with the standard three elevation bands.
func NewLocation(id, name string) model.Location {
	return model.Location{
		ID:        id,
		Name:      name,
		Latitude:  39.6,
		Longitude: -106.35,
		Timezone:  "America/Denver",
		Elevations: []model.ElevationBand{
			{Name: "base", Meters: 2475},
			{Name: "mid", Meters: 3000},
			{Name: "top", Meters: 3527},
		},
	}
}

// NewForecastModel builds an enabled forecast model with the given horizon.
func NewForecastModel(id string, maxDays int) model.ForecastModel {
	return model.ForecastModel{
		ID:              id,
		ProviderModel:   id + "_seamless",
		MaxForecastDays: maxDays,
		RefreshEvery:    3 * time.Hour,
		Enabled:         true,
	}
}
