package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/data/pgxutil"
)

// Advisory locks serialising queue maintenance across processes.
var (
	lockRecoverActive  = pgxutil.LockKey{Class: 2000, ID: 1}
	lockDeleteTerminal = pgxutil.LockKey{Class: 2000, ID: 2}
	lockDeleteEvents   = pgxutil.LockKey{Class: 2000, ID: 3}
)

func validateDeleteParams(params core.DeleteTerminalParams) error {
	if params.BatchSize <= 0 {
		return errors.New("batch size must be greater than zero")
	}
	if params.Cutoff.IsZero() {
		return errors.New("cutoff is required")
	}
	return nil
}

// DeleteTerminalOlderThan deletes up to BatchSize done and error jobs that finished before
// the cutoff, oldest first. Pending and active jobs are never touched. Callers loop until
// zero is returned.
func (r *JobRepo) DeleteTerminalOlderThan(ctx context.Context, params core.DeleteTerminalParams) (int64, error) {
	if err := validateDeleteParams(params); err != nil {
		return 0, err
	}
	n, err := pgxutil.ExecLocked(ctx, r.DB, lockDeleteTerminal, `
		DELETE FROM jobs
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status IN ('done', 'error')
			  AND finished_at IS NOT NULL
			  AND finished_at < $1
			ORDER BY finished_at
			LIMIT $2
		)`, params.Cutoff.UTC(), params.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return n, nil
}
