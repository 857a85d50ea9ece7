// Package pgxutil runs native pgx code over connections borrowed from a database/sql pool.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNotPgx is returned when the pool was not opened with the pgx stdlib driver.
var ErrNotPgx = errors.New("database/sql driver connection is not a pgx stdlib connection")

// LockKey is the two-part key of a transaction-scoped advisory lock.
type LockKey struct {
	Class int32
	ID    int32
}

// WithConn pins one pooled connection for the duration of fn.
func WithConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return ErrNotPgx
		}
		return fn(c.Conn())
	})
}

// WithTx runs fn in a transaction that commits when fn returns nil and rolls back otherwise.
func WithTx(ctx context.Context, db *sql.DB, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return WithConn(ctx, db, func(c *pgx.Conn) error {
		return pgx.BeginTxFunc(ctx, c, opts, fn)
	})
}

// ExecLocked runs one statement while holding the advisory lock for key and returns the rows
// it affected. When another session holds the lock the statement is skipped and 0 is returned.
func ExecLocked(ctx context.Context, db *sql.DB, key LockKey, query string, args ...any) (int64, error) {
	var affected int64
	err := WithTx(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked bool
		if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", key.Class, key.ID).Scan(&locked); err != nil {
			return fmt.Errorf("try advisory lock %d/%d: %w", key.Class, key.ID, err)
		}
		if !locked {
			return nil
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}
