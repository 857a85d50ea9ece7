package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

const defaultProbeTimeout = 2 * time.Second

// Probe checks one dependency. A nil error means it is reachable.
type Probe func(ctx context.Context) error

// HealthHandlers serves liveness and readiness.
type HealthHandlers struct {
	Probes  map[string]Probe
	Timeout time.Duration
	Logger  *slog.Logger
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	TookMS int64  `json:"took_ms"`
}

type readinessResponse struct {
	Status string        `json:"status"`
	Checks []checkResult `json:"checks"`
}

// Live reports that the process is serving requests.
func (h *HealthHandlers) Live(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every probe in parallel and answers 503 if any fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	results := make([]checkResult, 0, len(h.Probes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, probe := range h.Probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := runProbe(ctx, name, probe)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	resp := readinessResponse{Status: "ok", Checks: results}
	code := http.StatusOK
	for _, res := range results {
		if res.Status != "ok" {
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			if h.Logger != nil {
				h.Logger.Warn("readiness probe failed", "dependency", res.Name, "error", res.Error)
			}
		}
	}
	WriteJSON(w, code, resp)
}

func runProbe(ctx context.Context, name string, probe Probe) checkResult {
	start := time.Now()
	err := probe(ctx)
	res := checkResult{Name: name, Status: "ok", TookMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "failed"
		res.Error = err.Error()
	}
	return res
}
