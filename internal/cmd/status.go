package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/homeward-mc/homeward/internal/database"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected database and schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, _, closer, errOpen := openDatabase(ctx)
			if errOpen != nil {
				return errOpen
			}

			defer closer()

			version, errVersion := db.SchemaVersion(ctx)
			if errVersion != nil {
				return errVersion
			}

			users, errUsers := database.GetCount(ctx, db, db.Builder().
				Select("count(*)").
				From(db.TableName(database.TableUserData)))
			if errUsers != nil {
				return errUsers
			}

			homes, errHomes := database.GetCount(ctx, db, db.Builder().
				Select("count(*)").
				From(db.TableName(database.TableHomeData)))
			if errHomes != nil {
				return errHomes
			}

			warps, errWarps := database.GetCount(ctx, db, db.Builder().
				Select("count(*)").
				From(db.TableName(database.TableWarpData)))
			if errWarps != nil {
				return errWarps
			}

			slog.Info("Database status",
				slog.String("database", db.Type().DisplayName()),
				slog.Int("schema_version", version),
				slog.Int64("users", users),
				slog.Int64("homes", homes),
				slog.Int64("warps", warps))

			return nil
		},
	}
}
