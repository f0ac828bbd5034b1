package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Cluster.ID != "default" {
		t.Errorf("expected cluster id %q, got %q", "default", cfg.Cluster.ID)
	}
	if cfg.Server.Port != 18791 {
		t.Errorf("expected Port=18791, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxHours != 168 {
		t.Errorf("expected MaxHours=168, got %d", cfg.Server.MaxHours)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %q", cfg.Log.Level)
	}
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 18791 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("Load after create error: %v", err)
	}
	if reloaded.Cluster.ServerURL != cfg.Cluster.ServerURL {
		t.Fatalf("expected persisted server_url %q, got %q", cfg.Cluster.ServerURL, reloaded.Cluster.ServerURL)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}

	cfg = DefaultConfig()
	cfg.Log.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}

	cfg = DefaultConfig()
	cfg.Cluster.ServerURL = " "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty server_url")
	}

	cfg = DefaultConfig()
	cfg.Server.MaxHours = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if cfg.Server.MaxHours != 168 {
		t.Fatalf("expected MaxHours backfilled to 168, got %d", cfg.Server.MaxHours)
	}
	if cfg.Server.MaxRequestDuration() != 168*time.Hour {
		t.Fatalf("unexpected max request duration: %s", cfg.Server.MaxRequestDuration())
	}

	cfg = DefaultConfig()
	cfg.Server.Policy.Mode = "STRICT"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if cfg.Server.Policy.Mode != "strict" {
		t.Fatalf("expected policy mode normalized to strict, got %q", cfg.Server.Policy.Mode)
	}

	cfg = DefaultConfig()
	cfg.Server.Policy.Mode = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if cfg.Server.Policy.Mode != "relaxed" {
		t.Fatalf("expected policy mode backfilled to relaxed, got %q", cfg.Server.Policy.Mode)
	}

	cfg = DefaultConfig()
	cfg.Server.Policy.Mode = "paranoid"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown policy mode")
	}
}
