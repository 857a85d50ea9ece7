package pgxutil_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopecast/slopecast-api/internal/data/pgxutil"
	"github.com/slopecast/slopecast-api/internal/testutil"
)

func TestWithTx(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS tx_probe`)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `CREATE TABLE tx_probe (n int)`)
		require.NoError(t, err)
		t.Cleanup(func() { _, _ = db.ExecContext(context.Background(), `DROP TABLE IF EXISTS tx_probe`) })

		boom := errors.New("boom")
		err = pgxutil.WithTx(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `INSERT INTO tx_probe VALUES (1)`); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = pgxutil.WithTx(ctx, db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `INSERT INTO tx_probe VALUES (2)`)
			return err
		})
		require.NoError(t, err)

		var got []int
		err = pgxutil.WithConn(ctx, db, func(c *pgx.Conn) error {
			rows, err := c.Query(ctx, `SELECT n FROM tx_probe ORDER BY n`)
			if err != nil {
				return err
			}
			got, err = pgx.CollectRows(rows, pgx.RowTo[int])
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []int{2}, got, "rolled back insert is gone")
	})
}

func TestExecLocked_SkipsWhenHeld(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		key := pgxutil.LockKey{Class: 9000, ID: 1}

		n, err := pgxutil.ExecLocked(ctx, db, key, `SELECT 1`)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		err = pgxutil.WithTx(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, key.Class, key.ID); err != nil {
				return err
			}
			n, err := pgxutil.ExecLocked(ctx, db, key, `SELECT 1`)
			if err != nil {
				return err
			}
			assert.Zero(t, n, "held lock skips the statement")
			return nil
		})
		require.NoError(t, err)
	})
}
