package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q", cfg.Port)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("SweepInterval mismatch: got %s", cfg.SweepInterval)
	}
	if cfg.GlobalConcurrency != 64 {
		t.Fatalf("GlobalConcurrency mismatch: got %d", cfg.GlobalConcurrency)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoadConfigModerationBlocklist(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MODERATION_BLOCKLIST", "alpha, beta ,,gamma")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.ModerationBlocklist) != 3 {
		t.Fatalf("blocklist mismatch: %#v", cfg.ModerationBlocklist)
	}
}
