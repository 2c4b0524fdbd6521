package cmd

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"

	"github.com/homeward-mc/homeward/internal/config"
	"github.com/homeward-mc/homeward/internal/log"
)

func TestSetupLoggingBindsSentry(t *testing.T) {
	conf := config.Config{
		Log: log.Config{
			Level:     log.Error,
			SentryDSN: "https://public@sentry.example.com/42",
		},
	}

	closer := setupLogging(t.Context(), conf)
	defer closer()

	// The configured DSN must end up as a client bound to the hub the slog
	// handler captures through, otherwise every event is dropped.
	client := sentry.CurrentHub().Client()
	require.NotNil(t, client)
	require.Equal(t, "https://public@sentry.example.com/42", client.Options().Dsn)
}

func TestSetupLoggingWithoutSentry(t *testing.T) {
	closer := setupLogging(t.Context(), config.Config{Log: log.Config{Level: log.Error}})
	defer closer()
}
