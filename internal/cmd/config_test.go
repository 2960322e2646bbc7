package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	config, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", config.Addr)
	}
	if config.Store.Addr != "localhost:6379" {
		t.Errorf("store addr = %q", config.Store.Addr)
	}
	if config.ImageQueueSize != 16 {
		t.Errorf("image queue size = %d, want 16", config.ImageQueueSize)
	}
}

func TestLoadConfigReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
addr: ":9000"
public_url: "https://game.example.org"
store:
  addr: "redis.internal:6379"
  db: 2
nats_url: "nats://bus.internal:4222"
image_queue_size: 4
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.Addr != ":9000" {
		t.Errorf("addr = %q, want :9000", config.Addr)
	}
	if config.PublicURL != "https://game.example.org" {
		t.Errorf("public url = %q", config.PublicURL)
	}
	if config.Store.Addr != "redis.internal:6379" || config.Store.DB != 2 {
		t.Errorf("store = %+v", config.Store)
	}
	if config.NATSURL != "nats://bus.internal:4222" {
		t.Errorf("nats url = %q", config.NATSURL)
	}
	if config.ImageQueueSize != 4 {
		t.Errorf("image queue size = %d, want 4", config.ImageQueueSize)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9000\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PORT", "7777")
	t.Setenv("REDIS_ADDR", "override:6379")
	t.Setenv("REDIS_DB", "5")

	config, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.Addr != ":7777" {
		t.Errorf("addr = %q, want :7777", config.Addr)
	}
	if config.Store.Addr != "override:6379" {
		t.Errorf("store addr = %q", config.Store.Addr)
	}
	if config.Store.DB != 5 {
		t.Errorf("store db = %d, want 5", config.Store.DB)
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}
