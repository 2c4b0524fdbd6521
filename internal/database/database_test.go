package database_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/tests"
)

func TestSQLiteFreshInstall(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	db := fixture.Database
	require.Equal(t, database.Ready, db.State())
	require.Equal(t, database.SQLite, db.Type())

	// A fresh schema is stamped with the latest version so migrations never
	// replay over it.
	version, errVersion := db.SchemaVersion(t.Context())
	require.NoError(t, errVersion)
	require.Equal(t, database.LatestVersion(), version)
}

func TestSchemaVersionMissingVersusFailing(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	db := fixture.Database
	metaTable := db.TableName(database.TableMetaData)

	// An empty metadata table reads as version 0.
	_, errClear := db.Exec(t.Context(), "DELETE FROM "+metaTable)
	require.NoError(t, errClear)

	version, errVersion := db.SchemaVersion(t.Context())
	require.NoError(t, errVersion)
	require.Zero(t, version)

	// So does a metadata table that does not exist yet.
	_, errDrop := db.Exec(t.Context(), "DROP TABLE "+metaTable)
	require.NoError(t, errDrop)

	version, errVersion = db.SchemaVersion(t.Context())
	require.NoError(t, errVersion)
	require.Zero(t, version)

	// A backend that cannot be queried at all must surface the failure
	// instead of reporting a fresh schema.
	require.NoError(t, db.Close())

	_, errClosed := db.SchemaVersion(t.Context())
	require.ErrorIs(t, errClosed, database.ErrNotReady)
}

func TestSQLiteErrorMapping(t *testing.T) {
	fixture := tests.NewFixture()
	defer fixture.Close()

	db := fixture.Database
	userTable := db.TableName(database.TableUserData)

	insert := fmt.Sprintf("INSERT INTO %s (uuid, username, home_slots, ignoring_requests) VALUES (?, ?, ?, ?)",
		userTable)

	_, errFirst := db.Exec(t.Context(), insert, "u-1", "Alice", 10, false)
	require.NoError(t, errFirst)

	_, errSecond := db.Exec(t.Context(), insert, "u-1", "Alice", 10, false)
	require.ErrorIs(t, database.DBErr(errSecond), database.ErrDuplicate)

	row, errRow := database.QueryRowBuilder(t.Context(), db, db.Builder().
		Select("uuid").
		From(userTable).
		Where("uuid = ?", "nobody"))
	require.NoError(t, errRow)

	var uuid string
	require.ErrorIs(t, database.DBErr(row.Scan(&uuid)), database.ErrNoResult)
}
