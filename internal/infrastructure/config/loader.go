// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file configuration.
const (
	EnvSourceUsername = "IGPSPORT_USERNAME"
	EnvSourcePassword = "IGPSPORT_PASSWORD"
	EnvGarminEmail    = "GARMIN_EMAIL"
	EnvGarminPassword = "GARMIN_PASSWORD"
	EnvGarminDomain   = "GARMIN_DOMAIN"
	EnvStateFile      = "ACTIVITYSYNC_STATE_FILE"
)

// Loader handles loading configuration from files.
type Loader struct {
	configDir string
}

// NewLoader creates a new configuration loader.
// If configDir is empty, it defaults to ~/.activitysync.
func NewLoader(configDir string) (*Loader, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".activitysync")
	}

	return &Loader{configDir: configDir}, nil
}

// Load loads configuration from the specified file or default location,
// then applies environment overrides.
// If the file doesn't exist, the defaults are used.
func (l *Loader) Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(l.configDir, "config.yaml")
	}

	cfg := NewDefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// Save saves configuration to the specified file or default location.
// Passwords are never written.
func (l *Loader) Save(cfg *Config, configPath string) error {
	if configPath == "" {
		configPath = filepath.Join(l.configDir, "config.yaml")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	redacted := *cfg
	redacted.Source.Password = ""
	redacted.Destination.Password = ""

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# activitysync configuration
# Credentials are read from IGPSPORT_USERNAME, IGPSPORT_PASSWORD,
# GARMIN_EMAIL and GARMIN_PASSWORD.
#
`
	content := header + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigDir returns the configuration directory path.
func (l *Loader) ConfigDir() string {
	return l.configDir
}

// DefaultConfigPath returns the default configuration file path.
func (l *Loader) DefaultConfigPath() string {
	return filepath.Join(l.configDir, "config.yaml")
}

// ApplyEnv overrides credentials, the Garmin domain and the state file path
// from the process environment. Unset or empty variables leave values alone.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Source.Username, EnvSourceUsername)
	setFromEnv(&c.Source.Password, EnvSourcePassword)
	setFromEnv(&c.Destination.Email, EnvGarminEmail)
	setFromEnv(&c.Destination.Password, EnvGarminPassword)
	setFromEnv(&c.Destination.Domain, EnvGarminDomain)
	if v := os.Getenv(EnvStateFile); v != "" {
		c.Sync.State.Backend = "file"
		c.Sync.State.Path = v
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}
