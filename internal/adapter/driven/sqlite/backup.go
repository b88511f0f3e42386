package sqlite

import (
	"fmt"
	"io"
	"os"
)

// BackupExisting copies an existing database file to <path>.backup before the
// schema is touched, overwriting any previous backup. It returns the backup
// path, or "" with a nil error when there is no database yet. Callers treat
// failures as best-effort: a missing backup never blocks startup.
func BackupExisting(dbPath string) (string, error) {
	src, err := os.Open(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open database for backup: %w", err)
	}
	defer src.Close()

	backupPath := dbPath + ".backup"
	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy database to backup: %w", err)
	}

	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close backup file: %w", err)
	}

	return backupPath, nil
}
