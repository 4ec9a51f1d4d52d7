package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file errored: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("default port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Lifecycle.CleanupInterval != 5*time.Second {
		t.Errorf("default cleanup_interval = %v, want 5s", cfg.Lifecycle.CleanupInterval)
	}
	if cfg.Lifecycle.RetentionSeconds != 120 {
		t.Errorf("default retention_seconds = %v, want 120", cfg.Lifecycle.RetentionSeconds)
	}
	if cfg.Lifecycle.StaleSeconds != 0 || cfg.Lifecycle.MaxTaskAge != 0 {
		t.Errorf("stale/max-age defaults = %v/%v, want disabled", cfg.Lifecycle.StaleSeconds, cfg.Lifecycle.MaxTaskAge)
	}
	if cfg.Persistence.Driver != "" {
		t.Errorf("default persistence driver = %q, want disabled", cfg.Persistence.Driver)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
lifecycle:
  cleanup_interval: 1s
  stale_seconds: 30
persistence:
  driver: file
  path: /tmp/tasks.json
auth:
  api_tokens: ["alpha", "beta"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Lifecycle.StaleSeconds != 30 {
		t.Errorf("stale_seconds = %v, want 30", cfg.Lifecycle.StaleSeconds)
	}
	if cfg.Persistence.Driver != "file" || cfg.Persistence.Path != "/tmp/tasks.json" {
		t.Errorf("persistence = %+v", cfg.Persistence)
	}
	if len(cfg.Auth.APITokens) != 2 {
		t.Errorf("api_tokens = %v, want two entries", cfg.Auth.APITokens)
	}
	// Untouched keys keep their defaults.
	if cfg.Lifecycle.RetentionSeconds != 120 {
		t.Errorf("retention_seconds = %v, want default 120", cfg.Lifecycle.RetentionSeconds)
	}
}
