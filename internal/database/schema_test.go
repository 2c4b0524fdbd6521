package database_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homeward-mc/homeward/internal/database"
)

func TestFormatterDefaults(t *testing.T) {
	formatter, errFormatter := database.NewFormatter(nil)
	require.NoError(t, errFormatter)

	for _, table := range database.Tables() {
		require.Equal(t, table.DefaultName(), formatter.Name(table))
	}
}

func TestFormatterOverrides(t *testing.T) {
	formatter, errFormatter := database.NewFormatter(map[string]string{
		"home_data": "hh_homes",
		"WARP_DATA": "hh_warps",
		"user_data": "",
	})
	require.NoError(t, errFormatter)

	require.Equal(t, "hh_homes", formatter.Name(database.TableHomeData))
	require.Equal(t, "hh_warps", formatter.Name(database.TableWarpData))
	// Empty overrides fall back to the default.
	require.Equal(t, database.TableUserData.DefaultName(), formatter.Name(database.TableUserData))

	_, errUnknown := database.NewFormatter(map[string]string{"nope": "x"})
	require.ErrorIs(t, errUnknown, database.ErrUnknownTable)
}

func TestFormatterFormat(t *testing.T) {
	formatter, errFormatter := database.NewFormatter(map[string]string{"home_data": "hh_homes"})
	require.NoError(t, errFormatter)

	resolved, errResolve := formatter.Format(
		"CREATE TABLE %HOME_DATA% (owner TEXT REFERENCES %USER_DATA% (uuid));")
	require.NoError(t, errResolve)
	require.Equal(t,
		"CREATE TABLE hh_homes (owner TEXT REFERENCES "+database.TableUserData.DefaultName()+" (uuid));",
		resolved)

	// Idempotent on fully resolved text.
	again, errAgain := formatter.Format(resolved)
	require.NoError(t, errAgain)
	require.Equal(t, resolved, again)
}

func TestFormatterFormatUnknownPlaceholder(t *testing.T) {
	formatter, errFormatter := database.NewFormatter(nil)
	require.NoError(t, errFormatter)

	resolved, errResolve := formatter.Format("SELECT * FROM %NOT_A_TABLE%")
	require.ErrorIs(t, errResolve, database.ErrUnknownTable)
	require.Empty(t, resolved)
}

func TestMatchTable(t *testing.T) {
	table, errMatch := database.MatchTable("warp_data")
	require.NoError(t, errMatch)
	require.Equal(t, database.TableWarpData, table)

	_, errUnknown := database.MatchTable("bogus")
	require.ErrorIs(t, errUnknown, database.ErrUnknownTable)
}
