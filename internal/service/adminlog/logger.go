// Package adminlog fans operator-facing events out to the configured sinks. Delivery is
// best-effort: sink failures are logged and never reach the caller.
package adminlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/observability/notify"
)

const defaultSinkTimeout = 5 * time.Second

// SinkRegistration pairs a sink implementation with a name for logging. When Types is set,
// only events of those types reach the sink.
type SinkRegistration struct {
	Name  string
	Sink  notify.Sink
	Types []string
}

func (r SinkRegistration) accepts(eventType string) bool {
	if len(r.Types) == 0 {
		return true
	}
	for _, t := range r.Types {
		if t == eventType {
			return true
		}
	}
	return false
}

// Options configures the admin event logger.
type Options struct {
	Logger      *slog.Logger
	Sinks       []SinkRegistration
	SinkTimeout time.Duration
	Now         func() time.Time
}

// Logger dispatches admin events to all registered sinks concurrently.
type Logger struct {
	logger      *slog.Logger
	sinks       []SinkRegistration
	sinkTimeout time.Duration
	now         func() time.Time
}

var _ core.AdminEventLogger = (*Logger)(nil)

// New constructs a Logger. Nil sinks are dropped.
func New(opts Options) *Logger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.SinkTimeout
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Logger{
		logger:      logger.With("component", "admin_log"),
		sinks:       sinks,
		sinkTimeout: timeout,
		now:         now,
	}
}

// Log delivers event to every sink that accepts its type and waits for all of them.
func (l *Logger) Log(ctx context.Context, event model.AdminEvent) {
	if len(l.sinks) == 0 || event.Type == "" {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.now().UTC()
	}

	// Sinks outlive a cancelled request so the record is not lost with it.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.sinkTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, entry := range l.sinks {
		if !entry.accepts(event.Type) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.send(sinkCtx, entry, event); err != nil {
				l.logger.ErrorContext(ctx, "admin event delivery error",
					"sink", entry.Name,
					"event_type", event.Type,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// send delivers to one sink, turning a panic into an error.
func (l *Logger) send(ctx context.Context, entry SinkRegistration, event model.AdminEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sink panic: %v", p)
		}
	}()
	return entry.Sink.Send(ctx, event)
}

// Enabled reports whether the logger has any active sinks.
func (l *Logger) Enabled() bool {
	return len(l.sinks) > 0
}
