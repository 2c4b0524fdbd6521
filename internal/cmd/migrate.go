package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/homeward-mc/homeward/internal/config"
	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/log"
)

// migrateCmd creates the schema on a fresh database and otherwise applies any
// pending migrations. Connect performs the same work on startup; the command
// exists so operators can upgrade the schema ahead of a rollout.
func migrateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			conf, errConfig := config.Read(cfgFile)
			if errConfig != nil {
				return errConfig
			}

			logCloser := setupLogging(ctx, conf)
			defer logCloser()

			if strict {
				conf.DB.StrictMigrations = true
			}

			db, errDB := database.New(conf.DB.DatabaseConfig())
			if errDB != nil {
				return errors.Join(errDB, errDatabaseConnect)
			}

			if errConnect := db.Connect(ctx); errConnect != nil {
				return errors.Join(errConnect, errDatabaseConnect)
			}

			defer log.Closer(db)

			version, errVersion := db.SchemaVersion(ctx)
			if errVersion != nil {
				return errVersion
			}

			slog.Info("Schema up to date",
				slog.String("database", db.Type().DisplayName()),
				slog.Int("version", version))

			return nil
		},
	}

	cmd.Flags().BoolVarP(&strict, "strict", "s", false, "Abort on the first failed migration instead of skipping it")

	return cmd
}
