package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slopecast/slopecast-api/internal/data/pgxutil"
	"github.com/slopecast/slopecast-api/internal/domain/model"
)

const (
	defaultListPendingLimit = 50
	maxListPendingLimit     = 1000
)

// CountByStatus returns how many jobs are in each status.
func (r *JobRepo) CountByStatus(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'active'),
			count(*) FILTER (WHERE status = 'done'),
			count(*) FILTER (WHERE status = 'error')
		FROM jobs`).Scan(&s.Pending, &s.Active, &s.Done, &s.Error)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	return &s, nil
}

// ListPending returns pending jobs in claim order, capped at limit.
func (r *JobRepo) ListPending(ctx context.Context, limit int) ([]*model.Job, error) {
	switch {
	case limit <= 0:
		limit = defaultListPendingLimit
	case limit > maxListPendingLimit:
		limit = maxListPendingLimit
	}

	var jobs []*model.Job
	err := pgxutil.WithConn(ctx, r.DB, func(c *pgx.Conn) error {
		rows, err := c.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT $1`, limit)
		if err != nil {
			return err
		}
		jobs, err = pgx.CollectRows(rows, scanJob)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return jobs, nil
}

// FindActive returns the most recently started active job, or nil when none is running.
func (r *JobRepo) FindActive(ctx context.Context) (*model.Job, error) {
	job, err := r.queryOne(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'active'
		ORDER BY started_at DESC NULLS LAST
		LIMIT 1`)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return job, nil
}

func (r *JobRepo) queryOne(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithConn(ctx, r.DB, func(c *pgx.Conn) error {
		rows, err := c.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		job, err = pgx.CollectOneRow(rows, scanJob)
		return err
	})
	return job, err
}

// scanJob reads one row selected with jobColumns.
func scanJob(row pgx.CollectableRow) (*model.Job, error) {
	var (
		j         model.Job
		timeoutMS int64
		meta      []byte
	)
	if err := row.Scan(
		&j.ID, &j.Kind, &j.Status, &j.URL, &timeoutMS, &j.Attempts, &j.NextRunAt,
		&j.StartedAt, &j.FinishedAt, &j.LastError, &meta, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}

	j.Timeout = time.Duration(timeoutMS) * time.Millisecond
	j.Metadata = []byte(`{}`)
	if len(meta) > 0 {
		j.Metadata = append([]byte(nil), meta...)
	}
	j.NextRunAt = j.NextRunAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	j.StartedAt = utcPtr(j.StartedAt)
	j.FinishedAt = utcPtr(j.FinishedAt)
	return &j, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
