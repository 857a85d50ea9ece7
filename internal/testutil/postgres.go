package testutil

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/slopecast/slopecast-api/internal/migrate"
)

// resetTables lists tables in dependency order, children first.
var resetTables = []string{"location_elevations", "locations", "admin_events", "jobs"}

// DBConfig locates the Postgres test instance.
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DBConfigFromEnv reads TEST_DB_* variables. The default port 55432 matches the local test
// container; CI sets TEST_DB_PORT=5432.
func DBConfigFromEnv() DBConfig {
	return DBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "slopecast"),
		Password: envOr("TEST_DB_PASSWORD", "slopecast"),
		Name:     envOr("TEST_DB_NAME", "slopecast"),
		SSLMode:  envOr("TEST_DB_SSL_MODE", "disable"),
	}
}

// DSN builds a connection URL. A non-empty schema is put first on the search path.
func (c DBConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

var (
	probeOnce sync.Once
	probeErr  error
)

// SkipIfNoTestDB skips t when the Postgres test instance does not answer a ping. The probe
// runs once per test binary.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	cfg := DBConfigFromEnv()
	probeOnce.Do(func() {
		db, err := sql.Open("pgx", cfg.DSN(""))
		if err != nil {
			probeErr = err
			return
		}
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		probeErr = db.PingContext(ctx)
	})
	if probeErr != nil {
		unavailable(t, "DB", net.JoinHostPort(cfg.Host, cfg.Port), probeErr)
	}
}

// WithAutoDB runs fn against a migrated database. With TEST_DB_EPHEMERAL set, each call
// gets its own schema that is dropped afterwards; otherwise the shared database is emptied
// before fn runs.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)
	if envBool("TEST_DB_EPHEMERAL") {
		fn(ephemeralDB(t))
		return
	}
	fn(sharedDB(t))
}

func open(t testing.TB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("ping test db: %v", err)
	}
	return db
}

func migrateDB(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := migrate.Run(ctx, db, nil); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
}

func sharedDB(t testing.TB) *sql.DB {
	t.Helper()
	db := open(t, DBConfigFromEnv().DSN(""))
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close test db: %v", err)
		}
	})
	migrateDB(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "TRUNCATE "+strings.Join(resetTables, ", ")+" CASCADE"); err != nil {
		t.Fatalf("reset test tables: %v", err)
	}
	return db
}

func ephemeralDB(t testing.TB) *sql.DB {
	t.Helper()
	cfg := DBConfigFromEnv()
	admin := open(t, cfg.DSN(""))
	schema := uniqueName()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db := open(t, cfg.DSN(schema))
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close schema db: %v", err)
		}
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		if err := admin.Close(); err != nil {
			t.Logf("close admin db: %v", err)
		}
	})
	t.Logf("using ephemeral schema %s", schema)
	migrateDB(t, db)
	return db
}
