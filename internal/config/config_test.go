package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.ListenAddr)
	assert.Equal(t, "users.db", cfg.DBPath)
	assert.Equal(t, "config.json", cfg.ConfigPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OUTLINE_MANAGER_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("OUTLINE_MANAGER_DB_PATH", "/var/lib/outline/users.db")
	t.Setenv("OUTLINE_MANAGER_CONFIG_PATH", "/etc/outline/config.json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/outline/users.db", cfg.DBPath)
	assert.Equal(t, "/etc/outline/config.json", cfg.ConfigPath)
}

func writeDeploymentFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDeploymentProvider_LoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeDeploymentFile(t, path, `{
		"outline_api": "https://203.0.113.5:9999/secret",
		"tunnel_address": "tunnel.example.com",
		"force_port": 443,
		"custom_suffix": "/?outline=1",
		"subscription_domain": "sub.example.com"
	}`)

	provider := NewDeploymentProvider(path)
	dep, err := provider.Deployment()
	require.NoError(t, err)

	assert.Equal(t, "https://203.0.113.5:9999/secret", dep.OutlineAPI)
	assert.Equal(t, "tunnel.example.com", dep.TunnelAddress)
	assert.Equal(t, 443, dep.ForcePort)
	assert.Equal(t, "/?outline=1", dep.CustomSuffix)
	assert.Equal(t, "sub.example.com", dep.SubscriptionDomain)
}

func TestDeploymentProvider_ReloadsWhenFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeDeploymentFile(t, path, `{"tunnel_address": "old.example.com"}`)

	provider := NewDeploymentProvider(path)
	dep, err := provider.Deployment()
	require.NoError(t, err)
	require.Equal(t, "old.example.com", dep.TunnelAddress)

	writeDeploymentFile(t, path, `{"tunnel_address": "new.example.com"}`)
	// Coarse mtime resolution on some filesystems can hide a rewrite; force a
	// visibly newer timestamp.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	dep, err = provider.Deployment()
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", dep.TunnelAddress)
}

func TestDeploymentProvider_ServesCachedValueWhenUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeDeploymentFile(t, path, `{"tunnel_address": "tunnel.example.com"}`)

	provider := NewDeploymentProvider(path)

	for i := 0; i < 3; i++ {
		dep, err := provider.Deployment()
		require.NoError(t, err)
		assert.Equal(t, "tunnel.example.com", dep.TunnelAddress)
	}
}

func TestDeploymentProvider_FallsBackToLastGoodSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeDeploymentFile(t, path, `{"tunnel_address": "tunnel.example.com"}`)

	provider := NewDeploymentProvider(path)
	_, err := provider.Deployment()
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	dep, err := provider.Deployment()
	require.NoError(t, err, "a vanished file falls back to the last good settings")
	assert.Equal(t, "tunnel.example.com", dep.TunnelAddress)
}

func TestDeploymentProvider_FirstLoadFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		provider := NewDeploymentProvider(filepath.Join(t.TempDir(), "absent.json"))
		_, err := provider.Deployment()
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		writeDeploymentFile(t, path, `{"tunnel_address": `)

		provider := NewDeploymentProvider(path)
		_, err := provider.Deployment()
		assert.Error(t, err)
	})
}
