// Package config loads the daemon configuration from YAML, filling any
// unset field with a default. Every path setting lives under a single
// data directory unless overridden.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configurable parameters.
type Config struct {
	DataDir string `yaml:"data_dir"`

	// Paths default to files under DataDir when empty.
	IdentityPath string `yaml:"identity_path"`
	AuditPath    string `yaml:"audit_path"`
	KeyPath      string `yaml:"key_path"`
	ScopePath    string `yaml:"scope_path"`

	Session struct {
		MaxAge      time.Duration `yaml:"max_age"`
		IdleTimeout time.Duration `yaml:"idle_timeout"`
	} `yaml:"session"`

	Confirmation struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"confirmation"`

	Lockout struct {
		Threshold int           `yaml:"threshold"`
		Window    time.Duration `yaml:"window"`
	} `yaml:"lockout"`
}

// DefaultDataDir returns ~/.toolgate, falling back to a temp directory
// when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "toolgate")
	}
	return filepath.Join(home, ".toolgate")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{DataDir: DefaultDataDir()}
	cfg.Session.MaxAge = 12 * time.Hour
	cfg.Session.IdleTimeout = 30 * time.Minute
	cfg.Confirmation.TTL = 2 * time.Minute
	cfg.Confirmation.SweepInterval = 30 * time.Second
	cfg.Lockout.Threshold = 5
	cfg.Lockout.Window = 15 * time.Minute
	return cfg
}

// Load reads configuration from a YAML file. Empty path falls back to
// <data dir>/config.yaml; a missing file returns defaults. Fields left
// unset in the file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(DefaultDataDir(), "config.yaml")
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.FillPaths()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.FillPaths()
	return cfg, nil
}

// FillPaths derives any unset path from DataDir.
func (c *Config) FillPaths() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.IdentityPath == "" {
		c.IdentityPath = filepath.Join(c.DataDir, "identity.db")
	}
	if c.AuditPath == "" {
		c.AuditPath = filepath.Join(c.DataDir, "audit.jsonl")
	}
	if c.KeyPath == "" {
		c.KeyPath = filepath.Join(c.DataDir, "audit.key")
	}
	if c.ScopePath == "" {
		c.ScopePath = filepath.Join(c.DataDir, "scope.yaml")
	}
}

// DefaultYAML returns a commented configuration file for init.
func DefaultYAML() string {
	return `# toolgate configuration
# Generated by: toolgate init
#
# All paths default to files under data_dir when unset.

# data_dir: ~/.toolgate
# identity_path: ~/.toolgate/identity.db
# audit_path: ~/.toolgate/audit.jsonl
# key_path: ~/.toolgate/audit.key
# scope_path: ~/.toolgate/scope.yaml

session:
  # Absolute session lifetime from login.
  max_age: 12h
  # Sessions unused for this long expire early.
  idle_timeout: 30m

confirmation:
  # How long a high-sensitivity invocation waits for its confirmation.
  ttl: 2m
  # How often abandoned confirmations are closed out.
  sweep_interval: 30s

lockout:
  # Consecutive credential failures before the account locks.
  threshold: 5
  # Failures further apart than this do not accumulate.
  window: 15m
`
}
