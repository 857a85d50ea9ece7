package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/data/pgxutil"
	"github.com/slopecast/slopecast-api/internal/domain/model"
)

const (
	defaultAdminEventLimit = 100
	maxAdminEventLimit     = 1000
)

// AdminEventRepo persists operator-facing events in Postgres.
type AdminEventRepo struct {
	DB    *sql.DB
	clock Clock
}

// NewAdminEventRepo creates a new AdminEventRepo. A nil Clock uses the system clock.
func NewAdminEventRepo(db *sql.DB, tp Clock) *AdminEventRepo {
	if tp == nil {
		tp = SystemClock{}
	}
	return &AdminEventRepo{DB: db, clock: tp}
}

// Insert stores an event. A zero OccurredAt is stamped with the current time.
func (r *AdminEventRepo) Insert(ctx context.Context, event model.AdminEvent) error {
	if event.Type == "" {
		return errors.New("event type is required")
	}
	meta := event.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = r.clock.Now()
	}

	if _, err := r.DB.ExecContext(ctx,
		`INSERT INTO admin_events (type, message, metadata, occurred_at) VALUES ($1, $2, $3, $4)`,
		event.Type, event.Message, raw, occurred.UTC(),
	); err != nil {
		return fmt.Errorf("insert admin event: %w", err)
	}
	return nil
}

// List returns the most recent events, newest first.
func (r *AdminEventRepo) List(ctx context.Context, limit int) ([]model.AdminEvent, error) {
	if limit <= 0 {
		limit = defaultAdminEventLimit
	}
	if limit > maxAdminEventLimit {
		limit = maxAdminEventLimit
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, type, message, metadata, occurred_at
		FROM admin_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query admin events: %w", err)
	}
	defer rows.Close()

	events := make([]model.AdminEvent, 0, limit)
	for rows.Next() {
		var (
			ev  model.AdminEvent
			raw []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Message, &raw, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan admin event: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode admin event metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin events: %w", err)
	}
	return events, nil
}

// DeleteOlderThan removes up to BatchSize events that occurred before the cutoff.
func (r *AdminEventRepo) DeleteOlderThan(ctx context.Context, params core.DeleteTerminalParams) (int64, error) {
	if err := validateDeleteParams(params); err != nil {
		return 0, err
	}
	n, err := pgxutil.ExecLocked(ctx, r.DB, lockDeleteEvents, `
		DELETE FROM admin_events
		WHERE id IN (
			SELECT id FROM admin_events
			WHERE occurred_at < $1
			ORDER BY occurred_at
			LIMIT $2
		)`, params.Cutoff.UTC(), params.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("delete admin events: %w", err)
	}
	return n, nil
}
