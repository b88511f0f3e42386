package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupExisting_NoDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")

	backupPath, err := BackupExisting(path)
	require.NoError(t, err)
	assert.Empty(t, backupPath, "no database means no backup and no error")
}

func TestBackupExisting_CopiesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.db")
	require.NoError(t, os.WriteFile(path, []byte("db contents"), 0o600))

	backupPath, err := BackupExisting(path)
	require.NoError(t, err)
	assert.Equal(t, path+".backup", backupPath)

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "db contents", string(data))
}

func TestBackupExisting_OverwritesPreviousBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.db")
	require.NoError(t, os.WriteFile(path, []byte("new"), 0o600))
	require.NoError(t, os.WriteFile(path+".backup", []byte("old"), 0o600))

	_, err := BackupExisting(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
