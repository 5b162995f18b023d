package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.MetricsAddress != ":2112" {
		t.Fatalf("unexpected metrics address %q", cfg.Server.MetricsAddress)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Fatalf("unexpected failure threshold %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Alerting.SuppressionWindow != 2*time.Minute {
		t.Fatalf("unexpected suppression window %v", cfg.Alerting.SuppressionWindow)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "railwatch.yaml")
	data := []byte(`
feed:
  endpoint: feed://staging
breaker:
  failureThreshold: 8
connection:
  maxRetryAttempts: 2
analysis:
  interval: 30s
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Feed.Endpoint != "feed://staging" {
		t.Fatalf("unexpected endpoint %q", cfg.Feed.Endpoint)
	}
	if cfg.Breaker.FailureThreshold != 8 {
		t.Fatalf("file override not applied, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Connection.MaxRetryAttempts != 2 {
		t.Fatalf("file override not applied, got %d", cfg.Connection.MaxRetryAttempts)
	}
	if cfg.Analysis.Interval != 30*time.Second {
		t.Fatalf("file override not applied, got %v", cfg.Analysis.Interval)
	}
	// Untouched sections keep their defaults.
	if cfg.Breaker.SuccessThreshold != 3 {
		t.Fatalf("default lost on partial file, got %d", cfg.Breaker.SuccessThreshold)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RAILWATCH_FEED_ENDPOINT", "feed://prod")
	t.Setenv("RAILWATCH_BREAKER_OPEN_TIMEOUT", "90s")
	t.Setenv("RAILWATCH_ANOMALY_Z_THRESHOLD", "3.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Feed.Endpoint != "feed://prod" {
		t.Fatalf("env override not applied, got %q", cfg.Feed.Endpoint)
	}
	if cfg.Breaker.OpenTimeout != 90*time.Second {
		t.Fatalf("env override not applied, got %v", cfg.Breaker.OpenTimeout)
	}
	if cfg.Analysis.AnomalyZThreshold != 3.5 {
		t.Fatalf("env override not applied, got %f", cfg.Analysis.AnomalyZThreshold)
	}
}
