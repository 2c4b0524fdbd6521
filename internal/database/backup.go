package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// BackupSuffix is appended to the live file name to form the backup path.
const BackupSuffix = ".bak"

// BackupFlatFile copies a file based database to a sibling `.bak` file,
// replacing any previous backup. The live file is never modified. A missed
// backup is not fatal; callers log the returned error and proceed.
func BackupFlatFile(path string) error {
	if _, errStat := os.Stat(path); errStat != nil {
		if errors.Is(errStat, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to stat database file: %w", errStat)
	}

	backupPath := filepath.Join(filepath.Dir(path), filepath.Base(path)+BackupSuffix)

	if errRemove := os.Remove(backupPath); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale backup: %w", errRemove)
	}

	source, errOpen := os.Open(path)
	if errOpen != nil {
		return fmt.Errorf("failed to open database file: %w", errOpen)
	}

	defer logCloser(source)

	backup, errCreate := os.Create(backupPath)
	if errCreate != nil {
		return fmt.Errorf("failed to create backup file: %w", errCreate)
	}

	if _, errCopy := io.Copy(backup, source); errCopy != nil {
		logCloser(backup)

		return fmt.Errorf("failed to write backup file: %w", errCopy)
	}

	if errClose := backup.Close(); errClose != nil {
		return fmt.Errorf("failed to close backup file: %w", errClose)
	}

	return nil
}

func logCloser(closer io.Closer) {
	if errClose := closer.Close(); errClose != nil {
		slog.Error("Failed to close", slog.String("error", errClose.Error()))
	}
}
