package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "recovery:\n  enabled: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.Recovery.Enabled {
		t.Error("recovery should be enabled")
	}
	if cfg.Recovery.MinRetrySeconds != 2 || cfg.Recovery.MaxRetrySeconds != 60 {
		t.Errorf("retry defaults = %d/%d, want 2/60",
			cfg.Recovery.MinRetrySeconds, cfg.Recovery.MaxRetrySeconds)
	}
	if cfg.Recovery.RetryMultiplier != 2.0 {
		t.Errorf("multiplier default = %v, want 2.0", cfg.Recovery.RetryMultiplier)
	}
	if cfg.Recovery.RecoveryDelaySeconds != 120 {
		t.Errorf("recovery delay default = %d, want 120", cfg.Recovery.RecoveryDelaySeconds)
	}
	if len(cfg.Recovery.SkipPaths) == 0 {
		t.Error("skip paths default missing")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_DB_URL", "postgres://localhost:5432/agent")
	path := writeConfig(t, "database:\n  url: ${TEST_DB_URL}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost:5432/agent" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
}

func TestLoad_PolicyConversion(t *testing.T) {
	path := writeConfig(t, `
recovery:
  min_retry_seconds: 1
  max_retry_seconds: 10
  retry_multiplier: 3.0
  recovery_delay_seconds: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p := cfg.Recovery.Policy()
	if p.MinRetryDuration.Seconds() != 1 || p.MaxRetryDuration.Seconds() != 10 {
		t.Errorf("policy durations = %v/%v", p.MinRetryDuration, p.MaxRetryDuration)
	}
	if p.Multiplier != 3.0 {
		t.Errorf("policy multiplier = %v", p.Multiplier)
	}
	if p.RecoveryDelay.Seconds() != 5 {
		t.Errorf("policy recovery delay = %v", p.RecoveryDelay)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
