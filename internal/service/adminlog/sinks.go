package adminlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// SlogSink writes events to a structured logger.
type SlogSink struct {
	Logger *slog.Logger
}

// Send implements notify.Sink.
func (s SlogSink) Send(ctx context.Context, event model.AdminEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, 6)
	attrs = append(attrs, "event_type", event.Type, "occurred_at", event.OccurredAt)
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}
	level := slog.LevelInfo
	if event.Type == model.AdminEventJobFailed || event.Type == model.AdminEventFetchFailed {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, event.Message, attrs...)
	return nil
}

// RepoSink persists events through an AdminEventRepository.
type RepoSink struct {
	Repo core.AdminEventRepository
}

// Send implements notify.Sink.
func (s RepoSink) Send(ctx context.Context, event model.AdminEvent) error {
	if s.Repo == nil {
		return errors.New("admin event repository not configured")
	}
	return s.Repo.Insert(ctx, event)
}
