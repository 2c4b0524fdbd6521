package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homeward-mc/homeward/internal/database"
)

var errScriptBoom = errors.New("script failed")

// fakeTarget records the script executions and version writes performed by a
// migration pass without touching a real database.
type fakeTarget struct {
	dbType   database.Type
	version  int
	failing  map[string]error
	executed []string
	stamped  []int
}

func (f *fakeTarget) Type() database.Type { return f.dbType }

func (f *fakeTarget) ExecScript(_ context.Context, name string) error {
	if errFail, ok := f.failing[name]; ok {
		return errFail
	}

	f.executed = append(f.executed, name)

	return nil
}

func (f *fakeTarget) SchemaVersion(_ context.Context) (int, error) {
	return f.version, nil
}

func (f *fakeTarget) SetSchemaVersion(_ context.Context, version int) error {
	f.version = version
	f.stamped = append(f.stamped, version)

	return nil
}

func TestPerformMigrationsUpToDate(t *testing.T) {
	target := &fakeTarget{dbType: database.SQLite, version: database.LatestVersion()}

	require.NoError(t, database.PerformMigrations(t.Context(), target, false))
	require.Empty(t, target.executed)
	require.Empty(t, target.stamped)
}

func TestPerformMigrationsAheadOfRegistry(t *testing.T) {
	// A database written by a newer release reads as above the registry; a
	// pass must not try to "migrate down".
	target := &fakeTarget{dbType: database.SQLite, version: database.LatestVersion() + 3}

	require.NoError(t, database.PerformMigrations(t.Context(), target, false))
	require.Empty(t, target.executed)
	require.Equal(t, database.LatestVersion()+3, target.version)
}

func TestPerformMigrationsAppliesPendingInOrder(t *testing.T) {
	// Version 0 is at or below the watermark floor, so only the migrations
	// strictly above it run.
	target := &fakeTarget{dbType: database.SQLite, version: 0}

	require.NoError(t, database.PerformMigrations(t.Context(), target, false))

	var expected []string

	for _, migration := range database.OrderedMigrations() {
		if migration.Version > 0 && migration.IsSupported(database.SQLite) {
			expected = append(expected, migration.ScriptName(database.SQLite))
		}
	}

	require.Equal(t, expected, target.executed)
	require.Equal(t, []int{database.LatestVersion()}, target.stamped)
}

func TestPerformMigrationsSkipsFailuresByDefault(t *testing.T) {
	failingScript := firstPendingScript(t, database.SQLite)
	target := &fakeTarget{
		dbType:  database.SQLite,
		version: 0,
		failing: map[string]error{failingScript: errScriptBoom},
	}

	// Default mode logs and skips, then stamps the latest version anyway so
	// the failure does not replay on every startup.
	require.NoError(t, database.PerformMigrations(t.Context(), target, false))
	require.NotContains(t, target.executed, failingScript)
	require.Equal(t, database.LatestVersion(), target.version)
}

func TestPerformMigrationsStrictAborts(t *testing.T) {
	failingScript := firstPendingScript(t, database.SQLite)
	target := &fakeTarget{
		dbType:  database.SQLite,
		version: 0,
		failing: map[string]error{failingScript: errScriptBoom},
	}

	errMigrate := database.PerformMigrations(t.Context(), target, true)
	require.ErrorIs(t, errMigrate, database.ErrMigrate)
	require.ErrorIs(t, errMigrate, errScriptBoom)

	// Only the versions that actually applied are recorded, so the next
	// strict pass retries from the failure.
	require.Equal(t, 0, target.version)
}

func firstPendingScript(t *testing.T, dbType database.Type) string {
	t.Helper()

	for _, migration := range database.OrderedMigrations() {
		if migration.Version > 0 && migration.IsSupported(dbType) {
			return migration.ScriptName(dbType)
		}
	}

	t.Fatal("registry has no pending migrations above version 0")

	return ""
}
