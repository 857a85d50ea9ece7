package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slopecast/slopecast-api/internal/domain/model"
	apperrors "github.com/slopecast/slopecast-api/internal/errors"
	"github.com/slopecast/slopecast-api/internal/service"
)

// WeatherAPI is the weather batch surface the handlers depend on.
type WeatherAPI interface {
	FetchAllWeather(ctx context.Context, opts service.FetchAllOptions) (*model.FetchReport, error)
	BackfillAllWeather(ctx context.Context, daysBack int) (*model.FetchReport, error)
	BackfillLocations(ctx context.Context, ids []string) (*model.FetchReport, error)
	Backfill(ctx context.Context, ids []string, daysBack int) (*model.FetchReport, error)
}

// WeatherHandlers runs fetch batches synchronously and returns their report.
type WeatherHandlers struct {
	Svc WeatherAPI
}

type fetchRequest struct {
	Context     string   `json:"context"`
	LocationIDs []string `json:"location_ids"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Force       bool     `json:"force"`
}

type backfillRequest struct {
	LocationIDs []string `json:"location_ids"`
	Days        int      `json:"days"`
}

// Fetch runs a batch. Start and End are calendar days (YYYY-MM-DD).
func (h *WeatherHandlers) Fetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	start, err := parseDay("start", req.Start)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	end, err := parseDay("end", req.End)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	report, err := h.Svc.FetchAllWeather(r.Context(), service.FetchAllOptions{
		Context:     model.FetchContext(strings.ToLower(strings.TrimSpace(req.Context))),
		LocationIDs: cleanIDs(req.LocationIDs),
		Start:       start,
		End:         end,
		Force:       req.Force,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// Backfill fills past days. Without days, the configured default applies to the given
// locations; backfilling every location requires days.
func (h *WeatherHandlers) Backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	ids := cleanIDs(req.LocationIDs)

	var (
		report *model.FetchReport
		err    error
	)
	switch {
	case req.Days < 0:
		err = apperrors.ValidationField("days", "days must be positive")
	case req.Days == 0 && len(ids) == 0:
		err = apperrors.ValidationField("days", "days is required when no location ids are given")
	case req.Days == 0:
		report, err = h.Svc.BackfillLocations(r.Context(), ids)
	case len(ids) == 0:
		report, err = h.Svc.BackfillAllWeather(r.Context(), req.Days)
	default:
		report, err = h.Svc.Backfill(r.Context(), ids, req.Days)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func parseDay(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, apperrors.ValidationField(field, fmt.Sprintf("%s must be a date (YYYY-MM-DD)", field))
	}
	return t, nil
}
