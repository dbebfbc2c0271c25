// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Storage.MaxAttempts != 5 {
		t.Errorf("Storage.MaxAttempts = %d, want 5", cfg.Storage.MaxAttempts)
	}
	if cfg.Storage.BackoffBase != 500*time.Millisecond || cfg.Storage.BackoffMax != 8*time.Second {
		t.Errorf("backoff = %v/%v, want 500ms/8s", cfg.Storage.BackoffBase, cfg.Storage.BackoffMax)
	}
	if cfg.Storage.CacheTTL != 30*time.Second {
		t.Errorf("Storage.CacheTTL = %v, want 30s", cfg.Storage.CacheTTL)
	}
	if cfg.Hub.QueueSize != 256 {
		t.Errorf("Hub.QueueSize = %d, want 256", cfg.Hub.QueueSize)
	}
	if cfg.Hub.PingPeriod() != 54*time.Second {
		t.Errorf("Hub.PingPeriod() = %v, want 54s", cfg.Hub.PingPeriod())
	}
	if cfg.Offline.MaxAttempts != 5 {
		t.Errorf("Offline.MaxAttempts = %d, want 5", cfg.Offline.MaxAttempts)
	}
	if cfg.Server.Addr() != "0.0.0.0:3870" {
		t.Errorf("Server.Addr() = %s", cfg.Server.Addr())
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"SETLIST_STORAGE_ROOT_FOLDERS", "storage.root_folders"},
		{"ROOT_FOLDERS", "storage.root_folders"},
		{"LOG_LEVEL", "logging.level"},
		{"SETLIST_LOG_LEVEL", "logging.level"},
		{"HTTP_PORT", "server.port"},
		{"SETLIST_HUB__QUEUE_SIZE", "hub.queue_size"},
		{"SETLIST_OFFLINE__DATA_DIR", "offline.data_dir"},
		{"HUB__QUEUE_SIZE", ""},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := envTransformFunc(tt.key); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestLoadWithKoanf_Env(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SETLIST_STORAGE_ROOT_FOLDERS", "rootA, rootB ,")
	t.Setenv("STORAGE_QUOTA_PER_100S", "200")
	t.Setenv("SETLIST_SYNC_POLL_INTERVAL", "90s")
	t.Setenv("SETLIST_HUB__QUEUE_SIZE", "32")
	t.Setenv("CORS_ORIGINS", "https://band.example.com,https://app.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if len(cfg.Storage.RootFolders) != 2 || cfg.Storage.RootFolders[0] != "rootA" || cfg.Storage.RootFolders[1] != "rootB" {
		t.Errorf("RootFolders = %v", cfg.Storage.RootFolders)
	}
	if cfg.Storage.QuotaPer100s != 200 {
		t.Errorf("QuotaPer100s = %d, want 200", cfg.Storage.QuotaPer100s)
	}
	if cfg.Sync.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %v, want 90s", cfg.Sync.PollInterval)
	}
	if cfg.Hub.QueueSize != 32 {
		t.Errorf("QueueSize = %d, want 32", cfg.Hub.QueueSize)
	}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}
}

func TestLoadWithKoanf_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  root_folders:
    - fileRoot
  cache_ttl: 1m
hub:
  queue_size: 64
security:
  webhook_token: "0123456789abcdef0123"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HUB_QUEUE_SIZE", "128")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if len(cfg.Storage.RootFolders) != 1 || cfg.Storage.RootFolders[0] != "fileRoot" {
		t.Errorf("RootFolders = %v", cfg.Storage.RootFolders)
	}
	if cfg.Storage.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want 1m", cfg.Storage.CacheTTL)
	}
	// Environment wins over the file.
	if cfg.Hub.QueueSize != 128 {
		t.Errorf("QueueSize = %d, want 128", cfg.Hub.QueueSize)
	}
	if cfg.Security.WebhookToken != "0123456789abcdef0123" {
		t.Errorf("WebhookToken = %q", cfg.Security.WebhookToken)
	}
}

func TestLoadWithKoanf_RequiresRootFolders(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SETLIST_STORAGE_ROOT_FOLDERS", "")
	t.Setenv("ROOT_FOLDERS", "")

	_, err := LoadWithKoanf()
	if err == nil || !strings.Contains(err.Error(), "STORAGE_ROOT_FOLDERS") {
		t.Fatalf("expected root folders error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Storage.RootFolders = []string{"root"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"duplicate root", func(c *Config) { c.Storage.RootFolders = []string{"a", "a"} }, "duplicate"},
		{"zero quota", func(c *Config) { c.Storage.QuotaPer100s = 0 }, "QUOTA"},
		{"backoff inverted", func(c *Config) { c.Storage.BackoffMax = time.Millisecond }, "BACKOFF"},
		{"bad base url", func(c *Config) { c.Storage.BaseURL = "ftp://x" }, "STORAGE_BASE_URL"},
		{"page size", func(c *Config) { c.Storage.PageSize = 5000 }, "PAGE_SIZE"},
		{"queue size", func(c *Config) { c.Hub.QueueSize = 0 }, "HUB_QUEUE_SIZE"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"short webhook token", func(c *Config) { c.Security.WebhookToken = "short" }, "WEBHOOK_TOKEN"},
		{"rate limit disabled ignores reqs", func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitReqs = 0
		}, ""},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateOffline(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Offline.RootID = "root"
	cfg.Offline.ViewerID = "alice"
	cfg.Offline.TranspositionKey = "Eb"
	if err := cfg.ValidateOffline(); err != nil {
		t.Fatalf("ValidateOffline() error = %v", err)
	}

	cfg.Offline.TranspositionKey = "Unknown"
	if err := cfg.ValidateOffline(); err == nil {
		t.Error("expected Unknown transposition key to be rejected")
	}

	cfg.Offline.TranspositionKey = "Bb"
	cfg.Offline.ServerURL = "not a url"
	if err := cfg.ValidateOffline(); err == nil {
		t.Error("expected invalid server URL to be rejected")
	}
}
