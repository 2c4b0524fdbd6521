// Package cmd implements the CLI (Command Line Interface) of the application.
//
// migrate - Create or update the database schema
// status - Show the connected database and schema version
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/homeward-mc/homeward/internal/config"
	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/log"
)

// BuildVersion is set at build time via ldflags.
var BuildVersion = "master"

var cfgFile string

var errDatabaseConnect = errors.New("failed to connect to database")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "homeward",
	Short: "Cross-server home, warp and teleport storage",
	Long:  ``,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	setupCLI()

	if errExecute := rootCmd.Execute(); errExecute != nil {
		os.Exit(1)
	}
}

func setupCLI() {
	rootCmd.Version = BuildVersion
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/homeward.yml)")
}

// setupLogging binds the sentry client when a DSN is configured, then
// installs the default slog handler on top of it. The returned cleanup
// flushes any buffered sentry events before closing the log file.
func setupLogging(ctx context.Context, conf config.Config) func() {
	var sentryClient *sentry.Client

	if conf.Log.SentryDSN != "" {
		client, errSentry := log.NewSentryClient(conf.Log.SentryDSN, true, 0.25, BuildVersion)
		if errSentry != nil {
			slog.Error("Failed to setup sentry client", slog.String("error", errSentry.Error()))
		} else {
			sentryClient = client
		}
	}

	logCloser := log.MustCreateLogger(ctx, conf.Log.File, conf.Log.Level, sentryClient != nil, BuildVersion)

	if sentryClient != nil {
		slog.Info("Sentry.io support is enabled.")
	}

	return func() {
		if sentryClient != nil {
			sentryClient.Flush(2 * time.Second)
		}

		logCloser()
	}
}

// openDatabase loads config, installs the logger and connects the configured
// backend. The returned cleanup closes both.
func openDatabase(ctx context.Context) (database.Database, config.Config, func(), error) {
	conf, errConfig := config.Read(cfgFile)
	if errConfig != nil {
		return nil, config.Config{}, nil, errConfig
	}

	logCloser := setupLogging(ctx, conf)

	db, errDB := database.New(conf.DB.DatabaseConfig())
	if errDB != nil {
		logCloser()

		return nil, config.Config{}, nil, errors.Join(errDB, errDatabaseConnect)
	}

	if errConnect := db.Connect(ctx); errConnect != nil {
		logCloser()

		return nil, config.Config{}, nil, errors.Join(errConnect, errDatabaseConnect)
	}

	closer := func() {
		if errClose := db.Close(); errClose != nil {
			slog.Error("Failed to close database", slog.String("error", errClose.Error()))
		}

		logCloser()
	}

	return db, conf, closer, nil
}
