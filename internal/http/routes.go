package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// RouterServices holds the services the router exposes. Nil services leave their routes
// unregistered.
type RouterServices struct {
	Queue   QueueAPI
	Weather WeatherAPI
	Events  EventLister

	// Probes back /readyz, keyed by dependency name.
	Probes       map[string]Probe
	ProbeTimeout time.Duration

	EnqueueWaitTimeout time.Duration
	Logger             *slog.Logger
}

// NewRouter builds the admin API mux.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	health := &HealthHandlers{Probes: services.Probes, Timeout: services.ProbeTimeout, Logger: logger}
	// GET patterns also match HEAD.
	mux.HandleFunc("GET /healthz", health.Live)
	mux.HandleFunc("GET /readyz", health.Ready)

	if services.Queue != nil {
		registerQueueRoutes(mux, &QueueHandlers{
			Svc:         services.Queue,
			WaitTimeout: services.EnqueueWaitTimeout,
			Logger:      logger.With("component", "http_queue"),
		})
	}
	if services.Weather != nil {
		registerWeatherRoutes(mux, &WeatherHandlers{Svc: services.Weather})
	}
	if services.Events != nil {
		mux.HandleFunc("GET /api/events", (&EventHandlers{Svc: services.Events}).List)
	}

	return RequestID()(mux)
}

func registerQueueRoutes(mux *http.ServeMux, h *QueueHandlers) {
	mux.HandleFunc("GET /api/queue/status", h.Status)
	mux.HandleFunc("POST /api/queue/http", h.EnqueueHTTP)
}

func registerWeatherRoutes(mux *http.ServeMux, h *WeatherHandlers) {
	mux.HandleFunc("POST /api/weather/fetch", h.Fetch)
	mux.HandleFunc("POST /api/weather/backfill", h.Backfill)
}
