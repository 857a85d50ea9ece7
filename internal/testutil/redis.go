package testutil

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetupTestRedis returns a client on an emptied Redis database. The instance is read from
// TEST_REDIS_ADDR (default localhost:56379) and the database index from TEST_REDIS_DB
// (default 15, away from the application's 0).
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	addr := envOr("TEST_REDIS_ADDR", "localhost:56379")
	db, err := strconv.Atoi(envOr("TEST_REDIS_DB", "15"))
	if err != nil || db < 0 {
		t.Fatalf("invalid TEST_REDIS_DB %q", envOr("TEST_REDIS_DB", ""))
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, "REDIS", addr, err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("flush redis db %d: %v", db, err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("close redis client: %v", err)
		}
	})
	return client
}
