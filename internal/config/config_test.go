package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("missing config file must not fail: %v", err)
	}

	if cfg.FeedTable != "tasks" {
		t.Errorf("unexpected default feed table: %q", cfg.FeedTable)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("unexpected default sync interval: %v", cfg.SyncInterval)
	}
	if cfg.FailureThreshold != 3 {
		t.Errorf("unexpected default failure threshold: %d", cfg.FailureThreshold)
	}
}

func TestWriteThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.RemoteURL = "https://api.example.com"
	cfg.FeedURL = "https://feed.example.com"
	cfg.SyncInterval = 45 * time.Second
	cfg.ServerPort = 9000

	if err := cfg.Write(path); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.RemoteURL != "https://api.example.com" {
		t.Errorf("remote url not preserved: %q", loaded.RemoteURL)
	}
	if loaded.FeedURL != "https://feed.example.com" {
		t.Errorf("feed url not preserved: %q", loaded.FeedURL)
	}
	if loaded.SyncInterval != 45*time.Second {
		t.Errorf("sync interval not preserved: %v", loaded.SyncInterval)
	}
	if loaded.ServerPort != 9000 {
		t.Errorf("server port not preserved: %d", loaded.ServerPort)
	}
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("TASKSYNC_REMOTE_URL", "https://override.example.com")
	defer os.Unsetenv("TASKSYNC_REMOTE_URL")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RemoteURL != "https://override.example.com" {
		t.Errorf("env override not applied: %q", cfg.RemoteURL)
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := &Config{DataDir: "/data"}

	if got := cfg.DBPath(); got != filepath.Join("/data", "tasksync.db") {
		t.Errorf("unexpected db path: %q", got)
	}
	if got := cfg.QueuePath(); got != filepath.Join("/data", "pending.json") {
		t.Errorf("unexpected queue path: %q", got)
	}

	if got := cfg.LogPath(); got != "" {
		t.Errorf("empty log file must resolve to empty path, got %q", got)
	}
	cfg.LogFile = "daemon.log"
	if got := cfg.LogPath(); got != filepath.Join("/data", "daemon.log") {
		t.Errorf("relative log file must resolve inside data dir, got %q", got)
	}
	cfg.LogFile = "/var/log/tasksync.log"
	if got := cfg.LogPath(); got != "/var/log/tasksync.log" {
		t.Errorf("absolute log file must pass through, got %q", got)
	}
}
