// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/setlist/config.yaml",
	"/etc/setlist/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix is stripped from environment variable names before mapping.
const EnvPrefix = "SETLIST_"

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			BaseURL:        "https://www.googleapis.com/drive/v3",
			RootFolders:    []string{},
			QuotaPer100s:   1000,
			Burst:          10,
			MaxAttempts:    5,
			BackoffBase:    500 * time.Millisecond,
			BackoffMax:     8 * time.Second,
			CacheTTL:       30 * time.Second,
			RequestTimeout: 30 * time.Second,
			PageSize:       1000,
		},
		Sync: SyncConfig{
			PollInterval:  5 * time.Minute,
			ScanTimeout:   10 * time.Minute,
			ScanOnStartup: true,
		},
		Hub: HubConfig{
			QueueSize:       256,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			MaxMessageSize:  4096,
			EventBufferSize: 64,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3870,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // downloads and websocket connections are long-lived
			ShutdownTimeout: 15 * time.Second,
		},
		Security: SecurityConfig{
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Offline: OfflineConfig{
			DataDir:        "/data/setlist-offline",
			ServerURL:      "http://localhost:3870",
			QuotaBytes:     512 << 20, // 512MB
			MaxAttempts:    5,
			ReconnectDelay: 5 * time.Second,
			RequestTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads and validates the server configuration:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadOffline loads the same layered configuration but validates only the
// sections the offline client uses.
func LoadOffline() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateOffline(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SETLIST_STORAGE_ROOT_FOLDERS -> storage.root_folders
	// SETLIST_HUB__QUEUE_SIZE      -> hub.queue_size
	// LOG_LEVEL                    -> logging.level
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"storage.root_folders",
	"security.cors_origins",
}

// processSliceFields converts comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased variable names (after the SETLIST_ prefix is
// removed) to koanf paths. Unprefixed names are kept for the common flat
// variables operators already use.
var envMappings = map[string]string{
	// Storage
	"storage_base_url":        "storage.base_url",
	"storage_root_folders":    "storage.root_folders",
	"root_folders":            "storage.root_folders",
	"storage_access_token":    "storage.access_token",
	"drive_access_token":      "storage.access_token",
	"storage_quota_per_100s":  "storage.quota_per_100s",
	"storage_burst":           "storage.burst",
	"storage_max_attempts":    "storage.max_attempts",
	"storage_backoff_base":    "storage.backoff_base",
	"storage_backoff_max":     "storage.backoff_max",
	"storage_cache_ttl":       "storage.cache_ttl",
	"storage_request_timeout": "storage.request_timeout",
	"storage_page_size":       "storage.page_size",

	// Sync
	"sync_poll_interval":   "sync.poll_interval",
	"sync_scan_timeout":    "sync.scan_timeout",
	"sync_scan_on_startup": "sync.scan_on_startup",

	// Hub
	"hub_queue_size":        "hub.queue_size",
	"hub_write_wait":        "hub.write_wait",
	"hub_pong_wait":         "hub.pong_wait",
	"hub_max_message_size":  "hub.max_message_size",
	"hub_event_buffer_size": "hub.event_buffer_size",

	// Server
	"http_host":               "server.host",
	"http_port":               "server.port",
	"server_read_timeout":     "server.read_timeout",
	"server_write_timeout":    "server.write_timeout",
	"server_shutdown_timeout": "server.shutdown_timeout",

	// Security
	"webhook_token":       "security.webhook_token",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Offline client
	"offline_data_dir":          "offline.data_dir",
	"offline_server_url":        "offline.server_url",
	"offline_root_id":           "offline.root_id",
	"offline_viewer_id":         "offline.viewer_id",
	"offline_transposition_key": "offline.transposition_key",
	"offline_quota_bytes":       "offline.quota_bytes",
	"offline_max_attempts":      "offline.max_attempts",
	"offline_reconnect_delay":   "offline.reconnect_delay",
	"offline_request_timeout":   "offline.request_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path, or ""
// to skip it so unrelated variables do not pollute the config.
func envTransformFunc(key string) string {
	lower := strings.ToLower(key)
	prefixed := strings.HasPrefix(lower, strings.ToLower(EnvPrefix))
	lower = strings.TrimPrefix(lower, strings.ToLower(EnvPrefix))

	if mapped, ok := envMappings[lower]; ok {
		return mapped
	}

	// Generic nesting for prefixed variables: SETLIST_HUB__QUEUE_SIZE.
	if prefixed && strings.Contains(lower, "__") {
		return strings.ReplaceAll(lower, "__", ".")
	}

	return ""
}
