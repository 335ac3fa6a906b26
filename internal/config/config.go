// Package config loads the vaultctl configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the configuration file inside the vault directory.
	FileName = "config.yaml"

	// DBFileName is the SQLite database file inside the vault directory.
	DBFileName = "vault.db"

	// AuditFileName is the audit log file inside the vault directory.
	AuditFileName = "audit.log"

	// EnvVaultDir overrides the vault directory; it wins over the
	// config file. Mainly for scripting and tests.
	EnvVaultDir = "VAULTCTL_DIR"
)

// Config holds the user-tunable settings. Everything has a sensible
// default; a missing config file is not an error.
type Config struct {
	// VaultDir is the directory holding the database and audit log.
	VaultDir string `yaml:"vault_dir"`

	// Audit enables the append-only operation log.
	Audit bool `yaml:"audit"`
}

// Default returns the configuration used when no file is present.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to get user home directory: %w", err)
	}
	return Config{
		VaultDir: filepath.Join(home, ".vaultctl"),
		Audit:    true,
	}, nil
}

// Load resolves the effective configuration: defaults, overlaid by the
// config file if it exists, overlaid by the environment override.
func Load() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}

	if dir := os.Getenv(EnvVaultDir); dir != "" {
		cfg.VaultDir = dir
	}

	path := filepath.Join(cfg.VaultDir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	// The file must not redirect the vault away from the directory the
	// override selected.
	if dir := os.Getenv(EnvVaultDir); dir != "" {
		cfg.VaultDir = dir
	}
	return cfg, nil
}

// DBPath returns the database file path for the configured directory.
func (c Config) DBPath() string {
	return filepath.Join(c.VaultDir, DBFileName)
}

// AuditPath returns the audit log path, or "" when auditing is disabled.
func (c Config) AuditPath() string {
	if !c.Audit {
		return ""
	}
	return filepath.Join(c.VaultDir, AuditFileName)
}
