package data

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettingsDefaults() SettingsDefaults {
	disabled := testutil.NewForecastModel("icon", 7)
	disabled.Enabled = false
	return SettingsDefaults{
		CallsPerMinute: 30,
		Models:         []model.ForecastModel{testutil.NewForecastModel("gfs", 16), disabled},
		Retry:          model.RetryPolicy{MaxAttempts: 3, BackoffBase: 2 * time.Second},
	}
}

func TestSettingsRepo_DefaultsOnly(t *testing.T) {
	repo := NewSettingsRepo(nil, testSettingsDefaults())
	ctx := context.Background()

	cpm, err := repo.CallsPerMinute(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 30, cpm, 0)

	models, err := repo.Models(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1, "disabled models are filtered")
	assert.Equal(t, "gfs", models[0].ID)

	policy, err := repo.RetryPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, policy.MaxAttempts)

	require.Error(t, repo.SetCallsPerMinute(ctx, 10))
}

func TestSettingsRepo_RedisOverrides(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	repo := NewSettingsRepo(client, testSettingsDefaults())
	ctx := context.Background()

	t.Run("calls per minute is read on every call", func(t *testing.T) {
		require.NoError(t, repo.SetCallsPerMinute(ctx, 60))
		cpm, err := repo.CallsPerMinute(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 60, cpm, 0)

		require.NoError(t, repo.SetCallsPerMinute(ctx, 0))
		cpm, err = repo.CallsPerMinute(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 0, cpm, 0)
	})

	t.Run("rejects invalid budgets", func(t *testing.T) {
		for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
			assert.Error(t, repo.SetCallsPerMinute(ctx, v))
		}
	})

	t.Run("invalid stored budget falls back to default", func(t *testing.T) {
		require.NoError(t, client.HSet(ctx, settingsKey, settingsFieldCallsPerMinute, "fast").Err())
		cpm, err := repo.CallsPerMinute(ctx)
		require.Error(t, err)
		assert.InDelta(t, 30, cpm, 0)
	})

	t.Run("models override", func(t *testing.T) {
		require.NoError(t, repo.SetModels(ctx, []model.ForecastModel{
			testutil.NewForecastModel("ecmwf", 15),
			testutil.NewForecastModel("icon", 7),
		}))
		models, err := repo.Models(ctx)
		require.NoError(t, err)
		require.Len(t, models, 2)
		assert.Equal(t, "ecmwf", models[0].ID)
		assert.Equal(t, 3*time.Hour, models[0].RefreshEvery)
	})

	t.Run("retry policy override", func(t *testing.T) {
		require.NoError(t, client.HSet(ctx, settingsKey,
			settingsFieldRetryAttempts, "5",
			settingsFieldRetryBackoffMS, "250",
		).Err())
		policy, err := repo.RetryPolicy(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.RetryPolicy{MaxAttempts: 5, BackoffBase: 250 * time.Millisecond}, policy)
	})
}
