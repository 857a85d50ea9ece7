// Package httpx provides the admin HTTP surface of the queue and the weather fetch batches.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainjob "github.com/slopecast/slopecast-api/internal/domain/job"
	"github.com/slopecast/slopecast-api/internal/domain/model"
)

const defaultEnqueueWait = 2 * time.Minute

// QueueAPI is the queue surface the handlers depend on.
type QueueAPI interface {
	GetStatus(ctx context.Context) (*model.QueueStatus, error)
	EnqueueHTTP(ctx context.Context, url string, timeoutMillis int, metadata json.RawMessage) (*domainjob.Handle, error)
}

// QueueHandlers provides HTTP handlers for the job queue.
type QueueHandlers struct {
	Svc QueueAPI
	// WaitTimeout bounds how long EnqueueHTTP holds the request open for the job outcome.
	WaitTimeout time.Duration
	Logger      *slog.Logger
}

type enqueueHTTPRequest struct {
	URL           string          `json:"url"`
	TimeoutMillis int             `json:"timeout_ms"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

type enqueueHTTPResponse struct {
	JobID  string            `json:"job_id"`
	Status string            `json:"status"`
	Result *model.HTTPResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Status returns the queue snapshot.
func (h *QueueHandlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.Svc.GetStatus(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// EnqueueHTTP queues an outbound GET and waits for its outcome. When the wait runs out first
// the job keeps running and the response is 202 with its id.
func (h *QueueHandlers) EnqueueHTTP(w http.ResponseWriter, r *http.Request) {
	var req enqueueHTTPRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	handle, err := h.Svc.EnqueueHTTP(r.Context(), req.URL, req.TimeoutMillis, req.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	wait := h.WaitTimeout
	if wait <= 0 {
		wait = defaultEnqueueWait
	}
	waitCtx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	result, err := handle.Wait(waitCtx)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, enqueueHTTPResponse{
			JobID:  handle.JobID,
			Status: string(model.JobStatusDone),
			Result: result,
		})
	case waitCtx.Err() != nil && errors.Is(err, waitCtx.Err()):
		if r.Context().Err() != nil {
			// client went away; the job still runs
			return
		}
		WriteJSON(w, http.StatusAccepted, enqueueHTTPResponse{
			JobID:  handle.JobID,
			Status: string(model.JobStatusPending),
		})
	default:
		h.logger().WarnContext(r.Context(), "queued request failed", "job_id", handle.JobID, "error", err)
		WriteJSON(w, http.StatusBadGateway, enqueueHTTPResponse{
			JobID:  handle.JobID,
			Status: string(model.JobStatusError),
			Error:  err.Error(),
		})
	}
}

func (h *QueueHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
