package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	if cfg.ListenAddr != want.ListenAddr || cfg.DBPath != want.DBPath {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
listen_addr: ":9999"
db_path: "custom.db"
server_name: "My Community"
server_visibility: "private"
pace_interval_ms: 250
log_level: "debug"
`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("listen addr=%q want :9999", cfg.ListenAddr)
	}
	if cfg.DBPath != "custom.db" {
		t.Fatalf("db path=%q want custom.db", cfg.DBPath)
	}
	if cfg.ServerName != "My Community" || cfg.ServerVisibility != "private" {
		t.Fatalf("seed config wrong: %+v", cfg)
	}
	if cfg.PaceInterval != 250*time.Millisecond {
		t.Fatalf("pace interval=%v want 250ms", cfg.PaceInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level=%q want debug", cfg.LogLevel)
	}
	// Untouched fields keep their defaults.
	if cfg.LogFormat != DefaultConfig().LogFormat {
		t.Fatalf("log format=%q want default", cfg.LogFormat)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9999\"\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RICECALL_ADDR", ":7000")
	t.Setenv("RICECALL_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("listen addr=%q want :7000 (env wins)", cfg.ListenAddr)
	}
	if cfg.JWTSecret != "from-env" {
		t.Fatalf("jwt secret=%q want from-env", cfg.JWTSecret)
	}
}

func TestLoadConfigRejectsBadVisibility(t *testing.T) {
	t.Setenv("RICECALL_SERVER_VISIBILITY", "secret")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("LoadConfig: invalid visibility accepted")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig: missing file accepted")
	}
}
