package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/slopecast/slopecast-api/internal/data/pgxutil"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	apperrors "github.com/slopecast/slopecast-api/internal/errors"
)

// ErrLocationIDRequired is returned when upserting a location without an id.
var ErrLocationIDRequired = errors.New("location id is required")

// LocationRepo reads and writes ski resort locations and their elevation bands.
type LocationRepo struct {
	DB *sql.DB
}

// NewLocationRepo creates a new LocationRepo.
func NewLocationRepo(db *sql.DB) *LocationRepo {
	return &LocationRepo{DB: db}
}

const listLocationsSQL = `
	SELECT l.id, l.name, l.latitude, l.longitude, l.timezone, e.name, e.meters
	FROM locations l
	LEFT JOIN location_elevations e ON e.location_id = l.id
	%s
	ORDER BY l.name, l.id, e.meters`

// List returns all locations ordered by name, or only those with the given ids.
// Unknown ids are ignored.
func (r *LocationRepo) List(ctx context.Context, ids []string) ([]model.Location, error) {
	query := fmt.Sprintf(listLocationsSQL, "")
	var args []any
	if len(ids) > 0 {
		query = fmt.Sprintf(listLocationsSQL, "WHERE l.id = ANY($1)")
		args = append(args, ids)
	}

	out := make([]model.Location, 0)
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query locations: %w", err)
		}
		defer rows.Close()

		index := make(map[string]int)
		for rows.Next() {
			var (
				loc      model.Location
				elevName sql.NullString
				elevM    sql.NullFloat64
			)
			if err := rows.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude, &loc.Timezone, &elevName, &elevM); err != nil {
				return fmt.Errorf("scan location: %w", err)
			}
			pos, ok := index[loc.ID]
			if !ok {
				loc.Elevations = []model.ElevationBand{}
				out = append(out, loc)
				pos = len(out) - 1
				index[loc.ID] = pos
			}
			if elevName.Valid {
				out[pos].Elevations = append(out[pos].Elevations, model.ElevationBand{
					Name:   elevName.String,
					Meters: elevM.Float64,
				})
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert inserts or replaces a location and its full set of elevation bands.
func (r *LocationRepo) Upsert(ctx context.Context, loc model.Location) error {
	if strings.TrimSpace(loc.ID) == "" {
		return ErrLocationIDRequired
	}
	tz := loc.Timezone
	if tz == "" {
		tz = "UTC"
	}

	err := pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO locations (id, name, latitude, longitude, timezone)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				timezone = EXCLUDED.timezone,
				updated_at = now()
		`, loc.ID, loc.Name, loc.Latitude, loc.Longitude, tz); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM location_elevations WHERE location_id = $1`, loc.ID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, e := range loc.Elevations {
			batch.Queue(`INSERT INTO location_elevations (location_id, name, meters) VALUES ($1, $2, $3)`,
				loc.ID, e.Name, e.Meters)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upsert location %s: %w", loc.ID, apperrors.MapDBError(err))
	}
	return nil
}
