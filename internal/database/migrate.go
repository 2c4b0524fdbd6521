package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
)

var ErrMigrate = errors.New("migration failed to complete")

// Migration is a versioned, backend-gated schema change. The registry below
// is the closed set shipped with the software; it is never mutated at
// runtime. Scripts live under scripts/migrations and are named
// {version}-{protocol}-{name}.sql.
type Migration struct {
	Version   int
	Name      string
	Supported []Type
}

// IsSupported reports whether the migration applies to the given backend.
func (m Migration) IsSupported(dbType Type) bool {
	return slices.Contains(m.Supported, dbType)
}

// ScriptName is the embedded script path for the migration on a backend.
func (m Migration) ScriptName(dbType Type) string {
	return fmt.Sprintf("migrations/%d-%s-%s.sql", m.Version, dbType.Protocol(), m.Name)
}

//nolint:gochecknoglobals
var migrations = []Migration{
	{Version: 0, Name: "add_metadata_table", Supported: []Type{Postgres, SQLite}},
	{Version: 1, Name: "add_user_cooldowns_table", Supported: []Type{Postgres, SQLite}},
}

// OrderedMigrations returns the registry sorted ascending by version.
func OrderedMigrations() []Migration {
	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	return ordered
}

// LatestVersion is the highest version in the registry, or 0 when empty.
func LatestVersion() int {
	latest := 0
	for _, migration := range migrations {
		if migration.Version > latest {
			latest = migration.Version
		}
	}

	return latest
}

// MigrationTarget is the slice of the engine contract that the migration
// pass needs. Database satisfies it.
type MigrationTarget interface {
	Type() Type
	ExecScript(ctx context.Context, name string) error
	SchemaVersion(ctx context.Context) (int, error)
	SetSchemaVersion(ctx context.Context, version int) error
}

// PerformMigrations applies, in ascending version order, every registry
// migration with a version above the stored schema version that the backend
// type supports. Migrations are forward-only.
//
// By default a failing migration is logged and skipped so that unrelated
// later migrations still run, and the stored version is bumped to the latest
// known version regardless. With strict set, the pass aborts on the first
// failure and only the versions that actually applied are recorded.
func PerformMigrations(ctx context.Context, target MigrationTarget, strict bool) error {
	currentVersion, errVersion := target.SchemaVersion(ctx)
	if errVersion != nil {
		return errVersion
	}

	latestVersion := LatestVersion()
	if currentVersion >= latestVersion {
		return nil
	}

	slog.Info("Performing database migrations",
		slog.Int("current", currentVersion), slog.Int("target", latestVersion))

	applied := currentVersion

	for _, migration := range OrderedMigrations() {
		if migration.Version <= currentVersion || !migration.IsSupported(target.Type()) {
			continue
		}

		slog.Info("Performing database migration",
			slog.String("name", migration.Name), slog.Int("version", migration.Version))

		if errExec := target.ExecScript(ctx, migration.ScriptName(target.Type())); errExec != nil {
			if strict {
				if errSet := target.SetSchemaVersion(ctx, applied); errSet != nil {
					return errors.Join(errExec, errSet, ErrMigrate)
				}

				return errors.Join(errExec, ErrMigrate)
			}

			slog.Warn("Migration failed; skipping",
				slog.String("name", migration.Name), slog.Int("version", migration.Version),
				slog.String("error", errExec.Error()))

			continue
		}

		applied = migration.Version
	}

	if errSet := target.SetSchemaVersion(ctx, latestVersion); errSet != nil {
		return errSet
	}

	slog.Info("Completed database migrations", slog.Int("version", latestVersion))

	return nil
}
