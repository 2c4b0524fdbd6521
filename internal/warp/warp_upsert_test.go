package warp

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/position"
	"github.com/homeward-mc/homeward/internal/tests"
)

func TestUpsertWarpRowAdoptsWinningUUID(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	repo := &repository{db: fixture.Database, caseInsensitive: true}

	winner := tests.NewWarp("spawn", "alpha")
	require.NoError(t, repo.SaveWarp(t.Context(), &winner))

	// A writer that missed the pre-insert lookup arrives at the unique
	// name_key constraint carrying its own fresh uuid. The stored row keeps
	// the first writer's uuid, and that uuid must be reflected back onto the
	// late writer's warp.
	late := tests.NewWarp("Spawn", "beta")
	late.UUID = uuid.Must(uuid.NewV4())

	errUpsert := repo.db.WrapTx(t.Context(), func(exec database.Executor) error {
		savedID, errSaved := position.InsertSaved(t.Context(), repo.db, exec, late.SavedPosition)
		if errSaved != nil {
			return errSaved
		}

		return repo.upsertWarpRow(t.Context(), exec, &late, savedID)
	})
	require.NoError(t, errUpsert)
	require.Equal(t, winner.UUID, late.UUID)

	warps, errWarps := repo.GetWarps(t.Context())
	require.NoError(t, errWarps)
	require.Len(t, warps, 1)
	require.Equal(t, winner.UUID, warps[0].UUID)
	require.Equal(t, "beta", warps[0].ServerName)
}
