package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainjob "github.com/slopecast/slopecast-api/internal/domain/job"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	apperrors "github.com/slopecast/slopecast-api/internal/errors"
)

const testJobID = "7d4f2a9e-5c61-4b8e-9a0d-2f3c1e6b8a47"

type fakeQueue struct {
	status    *model.QueueStatus
	statusErr error

	enqueueErr error
	bridge     *domainjob.WaiterBridge
	// settle runs after the handle is created; nil leaves the job unsettled.
	settle func(b *domainjob.WaiterBridge, id string)

	gotURL      string
	gotTimeout  int
	gotMetadata json.RawMessage
}

func (f *fakeQueue) GetStatus(context.Context) (*model.QueueStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeQueue) EnqueueHTTP(_ context.Context, url string, timeoutMillis int, metadata json.RawMessage) (*domainjob.Handle, error) {
	f.gotURL, f.gotTimeout, f.gotMetadata = url, timeoutMillis, metadata
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	if f.bridge == nil {
		f.bridge = domainjob.NewWaiterBridge()
	}
	h := f.bridge.Register(testJobID)
	if f.settle != nil {
		f.settle(f.bridge, testJobID)
	}
	return h, nil
}

func serveQueue(t *testing.T, q *fakeQueue, wait time.Duration, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(RouterServices{Queue: q, EnqueueWaitTimeout: wait})
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestQueueHandlers_Status(t *testing.T) {
	next := time.Date(2026, 1, 15, 6, 0, 2, 0, time.UTC)
	q := &fakeQueue{status: &model.QueueStatus{
		CallsPerMinute: 30,
		IntervalMillis: 2000,
		PendingCount:   1,
		Queue:          []*model.Job{{ID: testJobID, Status: model.JobStatusPending}},
		NextAllowedAt:  &next,
	}}

	rec := serveQueue(t, q, time.Second, http.MethodGet, "/api/queue/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.InDelta(t, 30, body["calls_per_minute"], 0)
	assert.InDelta(t, 2000, body["interval_ms"], 0)
	assert.InDelta(t, 1, body["pending_count"], 0)
	assert.Len(t, body["queue"], 1)
	assert.Equal(t, "2026-01-15T06:00:02Z", body["next_allowed_at"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestQueueHandlers_StatusError(t *testing.T) {
	q := &fakeQueue{statusErr: errors.New("db down")}
	rec := serveQueue(t, q, time.Second, http.MethodGet, "/api/queue/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeBody(t, rec)["error"])
}

func TestQueueHandlers_EnqueueHTTP(t *testing.T) {
	tests := []struct {
		name       string
		q          *fakeQueue
		body       string
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name: "completed",
			q: &fakeQueue{settle: func(b *domainjob.WaiterBridge, id string) {
				b.Resolve(id, &model.HTTPResult{StatusCode: 200, Body: `{"ok":true}`})
			}},
			body:       `{"url":"https://api.open-meteo.com/v1/forecast?latitude=39.6","timeout_ms":5000,"metadata":{"source":"admin"}}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, testJobID, body["job_id"])
				assert.Equal(t, "done", body["status"])
				result, ok := body["result"].(map[string]any)
				require.True(t, ok)
				assert.InDelta(t, 200, result["status_code"], 0)
			},
		},
		{
			name: "failed",
			q: &fakeQueue{settle: func(b *domainjob.WaiterBridge, id string) {
				b.Reject(id, errors.New("unexpected status: 503"))
			}},
			body:       `{"url":"https://example.com"}`,
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "error", body["status"])
				assert.Equal(t, "unexpected status: 503", body["error"])
			},
		},
		{
			name:       "wait expires",
			q:          &fakeQueue{},
			body:       `{"url":"https://example.com"}`,
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, testJobID, body["job_id"])
				assert.Equal(t, "pending", body["status"])
			},
		},
		{
			name:       "validation error",
			q:          &fakeQueue{enqueueErr: apperrors.Wrap(errors.New("url is required"), apperrors.ErrCodeValidation, "invalid job")},
			body:       `{"url":""}`,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "invalid_request", body["error"])
			},
		},
		{
			name:       "unknown field",
			q:          &fakeQueue{},
			body:       `{"url":"https://example.com","priority":1}`,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "invalid_json", body["error"])
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveQueue(t, tt.q, 20*time.Millisecond, http.MethodPost, "/api/queue/http", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			tt.check(t, decodeBody(t, rec))
		})
	}
}

func TestQueueHandlers_EnqueueHTTPPassesFields(t *testing.T) {
	q := &fakeQueue{settle: func(b *domainjob.WaiterBridge, id string) {
		b.Resolve(id, &model.HTTPResult{StatusCode: 204})
	}}
	rec := serveQueue(t, q, time.Second, http.MethodPost, "/api/queue/http",
		`{"url":"https://example.com/a","timeout_ms":1500,"metadata":{"k":"v"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "https://example.com/a", q.gotURL)
	assert.Equal(t, 1500, q.gotTimeout)
	assert.JSONEq(t, `{"k":"v"}`, string(q.gotMetadata))
}

func TestQueueHandlers_ExpiredWaitForgetsWaiter(t *testing.T) {
	q := &fakeQueue{}
	rec := serveQueue(t, q, 10*time.Millisecond, http.MethodPost, "/api/queue/http", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, q.bridge.Pending())
}

func TestRouter_QueueRoutesAbsentWithoutService(t *testing.T) {
	router := NewRouter(RouterServices{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queue/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	rec := serveQueue(t, &fakeQueue{}, time.Second, http.MethodDelete, "/api/queue/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
