// Package config provides the YAML-based application configuration,
// including first-run config creation, 0600 permissions, and
// environment overrides for secrets.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store backend names.
const (
	BackendGitHub = "github"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// GitHubConfig holds the coordinates of the content repository.
type GitHubConfig struct {
	Owner  string `yaml:"owner" json:"owner"`
	Repo   string `yaml:"repo" json:"repo"`
	Branch string `yaml:"branch" json:"branch"`
	// Token is the API credential. Prefer the GITHUB_TOKEN environment
	// variable over committing it to the config file.
	Token string `yaml:"token,omitempty" json:"-"`
}

// SQLiteConfig holds settings for the local SQLite backend.
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	// Backend is one of "github", "sqlite", or "memory".
	Backend string       `yaml:"backend" json:"backend"`
	GitHub  GitHubConfig `yaml:"github" json:"github"`
	SQLite  SQLiteConfig `yaml:"sqlite" json:"sqlite"`
}

// RescheduleConfig configures the batch job trigger.
type RescheduleConfig struct {
	// Secret is the bearer credential required by POST /api/events/reschedule.
	// Prefer the RESCHEDULE_SECRET environment variable.
	Secret string `yaml:"secret,omitempty" json:"-"`

	// Cron is an optional cron-style schedule (e.g. "0 3 * * *") for
	// self-triggering the batch job. Empty disables the built-in timer;
	// an external scheduler can always hit the HTTP endpoint instead.
	Cron string `yaml:"cron" json:"cron"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the admin API.
	Listen string `yaml:"listen" json:"listen"`

	Store      StoreConfig      `yaml:"store" json:"store"`
	Reschedule RescheduleConfig `yaml:"reschedule" json:"reschedule"`

	// RevalidateURL is the site's cache-invalidation endpoint. Empty
	// disables the signal.
	RevalidateURL string `yaml:"revalidate_url" json:"revalidate_url"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: "127.0.0.1:8080",
		Store: StoreConfig{
			Backend: BackendGitHub,
			GitHub:  GitHubConfig{Branch: "main"},
			SQLite:  SQLiteConfig{Path: "./scoopcms.db"},
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch c.Store.Backend {
	case BackendGitHub, BackendSQLite, BackendMemory:
		// ok
	default:
		c.Store.Backend = BackendGitHub
	}
	if c.Store.GitHub.Branch == "" {
		c.Store.GitHub.Branch = "main"
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "./scoopcms.db"
	}
}

// ApplyEnv overrides secret-bearing fields from the environment:
// GITHUB_TOKEN, RESCHEDULE_SECRET, and REVALIDATE_URL.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.Store.GitHub.Token = v
	}
	if v := os.Getenv("RESCHEDULE_SECRET"); v != "" {
		c.Reschedule.Secret = v
	}
	if v := os.Getenv("REVALIDATE_URL"); v != "" {
		c.RevalidateURL = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory if
//     needed, write a default config with 0600 perms, and return it.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".scoopcms-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
