// Package config loads process configuration from environment variables and
// deployment settings from the shared config.json file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Config holds process-level configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	ConfigPath string
}

// Load reads configuration from environment variables and returns a Config.
// Optional variables with defaults: OUTLINE_MANAGER_LISTEN_ADDR (0.0.0.0:5000),
// OUTLINE_MANAGER_DB_PATH (users.db), OUTLINE_MANAGER_CONFIG_PATH (config.json).
func Load() (*Config, error) {
	listenAddr := "0.0.0.0:5000"
	if v, ok := os.LookupEnv("OUTLINE_MANAGER_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "users.db"
	if v, ok := os.LookupEnv("OUTLINE_MANAGER_DB_PATH"); ok {
		dbPath = v
	}

	configPath := "config.json"
	if v, ok := os.LookupEnv("OUTLINE_MANAGER_CONFIG_PATH"); ok {
		configPath = v
	}

	return &Config{
		ListenAddr: listenAddr,
		DBPath:     dbPath,
		ConfigPath: configPath,
	}, nil
}

// Deployment holds the deployment-specific settings shared with the operator
// console through config.json.
type Deployment struct {
	// OutlineAPI is the base URL of the Outline server's management API,
	// including the secret path prefix.
	OutlineAPI string `json:"outline_api"`

	// TunnelAddress is the public host clients connect through; it replaces
	// the host in access URLs served to subscribers.
	TunnelAddress string `json:"tunnel_address"`

	// ForcePort overrides the port in served access URLs when nonzero.
	ForcePort int `json:"force_port"`

	// CustomSuffix is appended verbatim to rewritten access URLs. Anything
	// after a '#' in the configured value is dropped in favor of the key name.
	CustomSuffix string `json:"custom_suffix"`

	// SubscriptionDomain is the public host subscription links point at.
	SubscriptionDomain string `json:"subscription_domain"`
}

// DeploymentProvider serves the deployment settings from config.json and
// re-reads the file whenever its modification time changes, so edits made by
// the operator console take effect without a restart. Access goes through
// the provider only; nothing else reads the file.
type DeploymentProvider struct {
	path string

	mu      sync.Mutex
	current Deployment
	modTime time.Time
	loaded  bool
}

// NewDeploymentProvider creates a provider for the given config.json path.
// The file is not read until the first Deployment call.
func NewDeploymentProvider(path string) *DeploymentProvider {
	return &DeploymentProvider{path: path}
}

// Deployment returns the current deployment settings, reloading the file if
// it changed on disk. Once a load has succeeded, later stat or parse failures
// fall back to the last good settings rather than failing the caller.
func (p *DeploymentProvider) Deployment() (Deployment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err != nil {
		if p.loaded {
			return p.current, nil
		}
		return Deployment{}, fmt.Errorf("stat deployment config: %w", err)
	}

	if p.loaded && info.ModTime().Equal(p.modTime) {
		return p.current, nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if p.loaded {
			return p.current, nil
		}
		return Deployment{}, fmt.Errorf("read deployment config: %w", err)
	}

	var dep Deployment
	if err := json.Unmarshal(data, &dep); err != nil {
		if p.loaded {
			return p.current, nil
		}
		return Deployment{}, fmt.Errorf("parse deployment config: %w", err)
	}

	p.current = dep
	p.modTime = info.ModTime()
	p.loaded = true

	return dep, nil
}
