// Package testutil holds fixtures shared by package tests: builders, an in-memory job
// store, and connections to the Postgres, Redis and MongoDB test instances.
//
// Infrastructure helpers skip the calling test when the instance is unreachable, unless
// TEST_REQUIRE_INFRA (or the per-store TEST_REQUIRE_DB, TEST_REQUIRE_REDIS,
// TEST_REQUIRE_MONGO) is set, in which case they fail it.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
	"testing"
	"time"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func required(store string) bool {
	return envBool("TEST_REQUIRE_INFRA") || envBool("TEST_REQUIRE_"+store)
}

// unavailable skips t, or fails it when the store is required.
func unavailable(t testing.TB, store, where string, err error) {
	t.Helper()
	if required(store) {
		t.Fatalf("%s not available at %s: %v", store, where, err)
	}
	t.Skipf("%s not available at %s: %v", store, where, err)
}

// uniqueName returns a short lowercase identifier usable as a schema or database name.
func uniqueName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + strings.ToLower(time.Now().Format("150405.000000000"))
	}
	return "t_" + hex.EncodeToString(b)
}

// TestTime is the fixed instant tests use as "now".
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// FixedTimeFunc returns a clock stopped at t.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
