package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/slopecast/slopecast-api/config"
	httpx "github.com/slopecast/slopecast-api/internal/http"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	// writeTimeoutSlack is added to the enqueue wait so a waiting request can still answer.
	writeTimeoutSlack = 30 * time.Second
)

// Probes returns readiness checks for the connected stores. Nil handles are left out.
func Probes(db *sql.DB, rdb redis.UniversalClient, mc *mongo.Client) map[string]httpx.Probe {
	probes := make(map[string]httpx.Probe, 3)
	if db != nil {
		probes["postgres"] = db.PingContext
	}
	if rdb != nil {
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if mc != nil {
		probes["mongo"] = func(ctx context.Context) error { return mc.Ping(ctx, readpref.Primary()) }
	}
	return probes
}

// newHTTPServer builds the admin API server. Only services present in the container get
// routes.
func newHTTPServer(cfg *config.AppConfig, services ServiceContainer, probes map[string]httpx.Probe, logger *slog.Logger) *http.Server {
	routes := httpx.RouterServices{
		Probes:             probes,
		ProbeTimeout:       cfg.HTTP.ReadinessTimeout,
		EnqueueWaitTimeout: cfg.HTTP.EnqueueWaitTimeout,
		Logger:             logger,
	}
	if services.Queue != nil {
		routes.Queue = services.Queue
	}
	if services.Weather != nil {
		routes.Weather = services.Weather
	}
	if services.AdminEvents != nil {
		routes.Events = services.AdminEvents
	}

	handler := httpx.Chain(httpx.NewRouter(routes),
		httpx.Recover(logger),
		httpx.RequestID(),
		httpx.Logging(logger),
	)

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = defaultHTTPAddr
	}
	readHeader := cfg.HTTP.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 5 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.HTTP.EnqueueWaitTimeout + writeTimeoutSlack,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// serveHTTP listens until ctx is cancelled, then drains in-flight requests for up to
// timeout. A listener failure is returned immediately.
func serveHTTP(ctx context.Context, srv *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "http server listening", "addr", srv.Addr)
		listenErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down http server", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-listenErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
