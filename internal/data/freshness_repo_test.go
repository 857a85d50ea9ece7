package data

import (
	"context"
	"testing"
	"time"

	"github.com/slopecast/slopecast-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreshnessRepo(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	repo := NewFreshnessRepo(client)
	ctx := context.Background()

	_, ok, err := repo.LastFetched(ctx, "gfs")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2025, 1, 2, 3, 4, 5, 6, time.FixedZone("MST", -7*3600))
	require.NoError(t, repo.MarkFetched(ctx, "gfs", at))

	got, ok, err := repo.LastFetched(ctx, "gfs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(at))

	_, _, err = repo.LastFetched(ctx, "")
	require.Error(t, err)
	require.Error(t, repo.MarkFetched(ctx, "", at))
}
