package httpx

import (
	"context"
	"net/http"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

const defaultEventLimit = 100

// EventLister reads recent admin events.
type EventLister interface {
	List(ctx context.Context, limit int) ([]model.AdminEvent, error)
}

// EventHandlers exposes the admin event log.
type EventHandlers struct {
	Svc EventLister
}

// List returns the most recent events, newest first.
func (h *EventHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultEventLimit)
	events, err := h.Svc.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
