package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminEventRepo(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("insert and list newest first", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			clock := NewManualClock(testutil.TestTime())
			repo := NewAdminEventRepo(db, clock)
			ctx := context.Background()

			require.NoError(t, repo.Insert(ctx, model.AdminEvent{
				Type:     model.AdminEventJobFailed,
				Message:  "job failed",
				Metadata: map[string]any{"attempts": 2},
			}))
			clock.Advance(time.Minute)
			require.NoError(t, repo.Insert(ctx, model.AdminEvent{
				Type:    model.AdminEventFetchCompleted,
				Message: "fetch completed",
			}))

			events, err := repo.List(ctx, 10)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, model.AdminEventFetchCompleted, events[0].Type)
			assert.Equal(t, model.AdminEventJobFailed, events[1].Type)
			assert.InDelta(t, 2, events[1].Metadata["attempts"], 0)
			assert.True(t, events[1].OccurredAt.Equal(testutil.TestTime()))
		})
	})

	t.Run("delete older than cutoff", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewAdminEventRepo(db, nil)
			ctx := context.Background()
			now := time.Now().UTC()

			require.NoError(t, repo.Insert(ctx, model.AdminEvent{Type: "old", OccurredAt: now.Add(-10 * 24 * time.Hour)}))
			require.NoError(t, repo.Insert(ctx, model.AdminEvent{Type: "new", OccurredAt: now}))

			n, err := repo.DeleteOlderThan(ctx, core.DeleteTerminalParams{Cutoff: now.Add(-7 * 24 * time.Hour), BatchSize: 10})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			events, err := repo.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, "new", events[0].Type)
		})
	})

	t.Run("rejects missing type", func(t *testing.T) {
		repo := NewAdminEventRepo(nil, nil)
		require.Error(t, repo.Insert(context.Background(), model.AdminEvent{}))
	})
}
