package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scoopcms.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.Store.Backend != BackendGitHub || cfg.Store.GitHub.Branch != "main" {
		t.Fatalf("Store = %+v", cfg.Store)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config perms = %o, want 600", perm)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoopcms.yaml")

	cfg := DefaultConfig()
	cfg.Listen = "0.0.0.0:9000"
	cfg.Store.Backend = BackendSQLite
	cfg.Store.SQLite.Path = "/var/lib/scoopcms/content.db"
	cfg.Reschedule.Cron = "0 3 * * *"
	cfg.RevalidateURL = "https://example.com/api/revalidate"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Listen != cfg.Listen ||
		loaded.Store.Backend != cfg.Store.Backend ||
		loaded.Store.SQLite.Path != cfg.Store.SQLite.Path ||
		loaded.Reschedule.Cron != cfg.Reschedule.Cron ||
		loaded.RevalidateURL != cfg.RevalidateURL {
		t.Fatalf("round trip mismatch: %+v vs %+v", loaded, cfg)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Backend: "bogus"}}
	cfg.Normalize()

	if cfg.Listen != "127.0.0.1:8080" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.Store.Backend != BackendGitHub {
		t.Fatalf("Backend = %q, want fallback to github", cfg.Store.Backend)
	}
	if cfg.Store.GitHub.Branch != "main" || cfg.Store.SQLite.Path != "./scoopcms.db" {
		t.Fatalf("Store = %+v", cfg.Store)
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")
	t.Setenv("RESCHEDULE_SECRET", "env-secret")
	t.Setenv("REVALIDATE_URL", "https://site.example/api/revalidate")

	cfg := DefaultConfig()
	cfg.Store.GitHub.Token = "file-token"
	cfg.ApplyEnv()

	if cfg.Store.GitHub.Token != "env-token" {
		t.Fatalf("Token = %q", cfg.Store.GitHub.Token)
	}
	if cfg.Reschedule.Secret != "env-secret" {
		t.Fatalf("Secret = %q", cfg.Reschedule.Secret)
	}
	if cfg.RevalidateURL != "https://site.example/api/revalidate" {
		t.Fatalf("RevalidateURL = %q", cfg.RevalidateURL)
	}
}
