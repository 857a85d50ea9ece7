package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/data/pgxutil"
	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// claimNextDueSQL claims the oldest due pending job. SKIP LOCKED lets concurrent claimers
// pass over a row another transaction is already taking.
const claimNextDueSQL = `
WITH next AS (
	SELECT id FROM jobs
	WHERE status = 'pending' AND next_run_at <= $1
	ORDER BY created_at, id
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE jobs AS j
SET status = 'active', attempts = j.attempts + 1, started_at = $1, updated_at = $1
FROM next
WHERE j.id = next.id
RETURNING ` + qualifiedJobColumns

// Create inserts a pending job due now. An empty request ID gets a fresh uuid.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta := req.Metadata
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}
	now := r.clock.Now().UTC()

	var job *model.Job
	err := pgxutil.WithConn(ctx, r.DB, func(c *pgx.Conn) error {
		rows, err := c.Query(ctx, `
			INSERT INTO jobs (id, kind, status, url, timeout_ms, attempts, next_run_at, metadata, created_at, updated_at)
			VALUES ($1, $2, 'pending', $3, $4, 0, $5, $6, $5, $5)
			RETURNING `+jobColumns,
			id, req.Kind, req.URL, req.TimeoutMillis, now, meta)
		if err != nil {
			return err
		}
		job, err = pgx.CollectOneRow(rows, scanJob)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// ClaimNextDue moves the oldest due pending job to active and bumps its attempts.
// model.ErrNoJobsAvailable means nothing is due.
func (r *JobRepo) ClaimNextDue(ctx context.Context) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, claimNextDueSQL, r.clock.Now().UTC())
		if err != nil {
			return err
		}
		job, err = pgx.CollectOneRow(rows, scanJob)
		return err
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, model.ErrNoJobsAvailable
	case err != nil:
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// MarkDone completes an active job. false means the job was not active.
func (r *JobRepo) MarkDone(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, "mark job done", id, `
		UPDATE jobs
		SET status = 'done', finished_at = $2, updated_at = $2, last_error = NULL
		WHERE id = $1 AND status = 'active'`)
}

// MarkRetry returns an active job to pending, due after params.Delay.
func (r *JobRepo) MarkRetry(ctx context.Context, params core.MarkRetryParams) (bool, error) {
	if params.Delay < 0 {
		return false, errors.New("retry delay must be >= 0")
	}
	now := r.clock.Now().UTC()
	return r.transition(ctx, "mark job retry", params.ID, `
		UPDATE jobs
		SET status = 'pending', next_run_at = $3, last_error = $4, updated_at = $2
		WHERE id = $1 AND status = 'active'`, now.Add(params.Delay), params.ErrMsg)
}

// MarkError fails an active job permanently.
func (r *JobRepo) MarkError(ctx context.Context, id, errMsg string) (bool, error) {
	return r.transition(ctx, "mark job error", id, `
		UPDATE jobs
		SET status = 'error', finished_at = $2, last_error = $3, updated_at = $2
		WHERE id = $1 AND status = 'active'`, errMsg)
}

// transition runs an update guarded on the job being active. $1 is the id and $2 the
// current time; extra args follow.
func (r *JobRepo) transition(ctx context.Context, op, id, query string, extra ...any) (bool, error) {
	if id == "" {
		return false, ErrJobIDRequired
	}
	args := append([]any{id, r.clock.Now().UTC()}, extra...)
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n == 1, nil
}

// recoverActiveSQL settles rows left active by a dead process. Rows that reached the claim
// limit ($2) fail as interrupted; the rest are due again now with attempts kept.
const recoverActiveSQL = `
UPDATE jobs
SET status      = CASE WHEN attempts >= $2 THEN 'error' ELSE 'pending' END,
    finished_at = CASE WHEN attempts >= $2 THEN $1 ELSE finished_at END,
    last_error  = CASE WHEN attempts >= $2 THEN $3 ELSE last_error END,
    next_run_at = $1,
    updated_at  = $1
WHERE status = 'active'
RETURNING status = 'error'`

// ErrMsgInterrupted is recorded on jobs failed by RecoverActive.
const ErrMsgInterrupted = "interrupted"

// RecoverActive implements core.JobRepository. It runs under an advisory lock; when another
// session holds it nothing is changed.
func (r *JobRepo) RecoverActive(ctx context.Context, maxAttempts int) (core.RecoverResult, error) {
	var res core.RecoverResult
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now := r.clock.Now().UTC()
	err := pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked bool
		if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
			lockRecoverActive.Class, lockRecoverActive.ID).Scan(&locked); err != nil {
			return err
		}
		if !locked {
			return nil
		}
		rows, err := tx.Query(ctx, recoverActiveSQL, now, maxAttempts, ErrMsgInterrupted)
		if err != nil {
			return err
		}
		failed, err := pgx.CollectRows(rows, pgx.RowTo[bool])
		if err != nil {
			return err
		}
		for _, f := range failed {
			if f {
				res.Failed++
			} else {
				res.Requeued++
			}
		}
		return nil
	})
	if err != nil {
		return core.RecoverResult{}, fmt.Errorf("recover active jobs: %w", err)
	}
	return res, nil
}

// GetByID loads one job. ErrJobNotFound for an unknown id.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, ErrJobIDRequired
	}
	job, err := r.queryOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrJobNotFound
	case err != nil:
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}
