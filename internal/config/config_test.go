package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APPFORGE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("DatabaseDriver = %q, want sqlite", cfg.DatabaseDriver)
	}
	if cfg.SandboxBackend != "cloudbox" {
		t.Errorf("SandboxBackend = %q, want cloudbox", cfg.SandboxBackend)
	}
	if cfg.SandboxAutoIdle != 10*time.Minute {
		t.Errorf("SandboxAutoIdle = %v, want 10m", cfg.SandboxAutoIdle)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appforge.yaml")
	yaml := "listenAddr: \":9999\"\nsandboxBackend: docker\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("APPFORGE_CONFIG", path)
	t.Setenv("SANDBOX_BACKEND", "cloudbox")
	t.Setenv("SANDBOX_AUTO_IDLE_MINUTES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, yaml value not applied", cfg.ListenAddr)
	}
	if cfg.SandboxBackend != "cloudbox" {
		t.Errorf("SandboxBackend = %q, env must override yaml", cfg.SandboxBackend)
	}
	if cfg.SandboxAutoIdle != 3*time.Minute {
		t.Errorf("SandboxAutoIdle = %v, want 3m", cfg.SandboxAutoIdle)
	}
}
