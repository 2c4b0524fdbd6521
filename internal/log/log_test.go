package log_test

import (
	"log/slog"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"

	"github.com/homeward-mc/homeward/internal/log"
)

func TestToSlogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, log.ToSlogLevel(log.Debug))
	require.Equal(t, slog.LevelInfo, log.ToSlogLevel(log.Info))
	require.Equal(t, slog.LevelWarn, log.ToSlogLevel(log.Warn))
	require.Equal(t, slog.LevelError, log.ToSlogLevel(log.Error))
	require.Equal(t, slog.LevelError, log.ToSlogLevel(log.Level("bogus")))
}

func TestNewSentryClientBindsHub(t *testing.T) {
	client, errClient := log.NewSentryClient("https://public@sentry.example.com/1", false, 0, "test")
	require.NoError(t, errClient)
	require.NotNil(t, client)

	// Events captured through the current hub must reach this client; an
	// unbound hub silently drops everything.
	require.Same(t, client, sentry.CurrentHub().Client())
}

func TestNewSentryClientBadDSN(t *testing.T) {
	_, errClient := log.NewSentryClient("not-a-dsn", false, 0, "test")
	require.ErrorIs(t, errClient, log.ErrClientInit)
}
