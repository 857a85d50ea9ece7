package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/slopecast/slopecast-api/internal/domain/model"
	apperrors "github.com/slopecast/slopecast-api/internal/errors"
	"github.com/slopecast/slopecast-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationRepo_UpsertAndList(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewLocationRepo(db)
		ctx := context.Background()

		vail := testutil.NewLocation("vail", "Vail")
		aspen := testutil.NewLocation("aspen", "Aspen")
		aspen.Elevations = aspen.Elevations[:1]
		require.NoError(t, repo.Upsert(ctx, vail))
		require.NoError(t, repo.Upsert(ctx, aspen))

		all, err := repo.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "aspen", all[0].ID, "ordered by name")
		assert.Len(t, all[0].Elevations, 1)
		assert.Equal(t, []string{"base", "mid", "top"}, bandNames(all[1].Elevations))

		filtered, err := repo.List(ctx, []string{"vail", "unknown"})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "vail", filtered[0].ID)

		vail.Name = "Vail Resort"
		vail.Elevations = []model.ElevationBand{{Name: "top", Meters: 3527}}
		require.NoError(t, repo.Upsert(ctx, vail))

		filtered, err = repo.List(ctx, []string{"vail"})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "Vail Resort", filtered[0].Name)
		assert.Equal(t, []string{"top"}, bandNames(filtered[0].Elevations))
	})
}

func TestLocationRepo_UpsertErrors(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("requires id", func(t *testing.T) {
		repo := NewLocationRepo(nil)
		err := repo.Upsert(context.Background(), model.Location{Name: "x"})
		require.ErrorIs(t, err, ErrLocationIDRequired)
	})

	t.Run("maps check violations", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewLocationRepo(db)
			loc := testutil.NewLocation("bad", "Bad")
			loc.Latitude = 120

			err := repo.Upsert(context.Background(), loc)
			require.Error(t, err)
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
		})
	})

	t.Run("maps duplicate names to conflict", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewLocationRepo(db)
			ctx := context.Background()
			require.NoError(t, repo.Upsert(ctx, testutil.NewLocation("a", "Same")))

			err := repo.Upsert(ctx, testutil.NewLocation("b", "Same"))
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.ErrCodeConflict, appErr.Code)
		})
	})
}

func bandNames(bands []model.ElevationBand) []string {
	out := make([]string, 0, len(bands))
	for _, b := range bands {
		out = append(out, b.Name)
	}
	return out
}
