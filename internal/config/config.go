// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables (in that order of precedence,
// lowest first).
//
// The server binary uses Storage, Sync, Hub, Server, Security and Logging.
// The offline client binary uses Offline and Logging.
//
// Config is immutable after loading and safe for concurrent reads.
type Config struct {
	Storage  StorageConfig  `koanf:"storage"`
	Sync     SyncConfig     `koanf:"sync"`
	Hub      HubConfig      `koanf:"hub"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Offline  OfflineConfig  `koanf:"offline"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StorageConfig configures the cloud-storage client.
type StorageConfig struct {
	// BaseURL of the Drive v3 REST API.
	BaseURL string `koanf:"base_url"`

	// RootFolders are the folder ids watched by the sync engine. The first
	// one is the default for listing requests without ?root=.
	RootFolders []string `koanf:"root_folders"`

	// AccessToken is a static bearer token. Deployments with an OAuth
	// collaborator supply a TokenSource instead and leave this empty.
	AccessToken string `koanf:"access_token"`

	// QuotaPer100s is the provider's published per-100-seconds quota. The
	// shared token bucket refills at QuotaPer100s/100 tokens per second.
	QuotaPer100s int `koanf:"quota_per_100s"`
	Burst        int `koanf:"burst"`

	// Retry policy for throttled calls.
	MaxAttempts int           `koanf:"max_attempts"`
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffMax  time.Duration `koanf:"backoff_max"`

	CacheTTL       time.Duration `koanf:"cache_ttl"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	PageSize       int           `koanf:"page_size"`
}

// SyncConfig configures the per-root sync engines.
type SyncConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	ScanTimeout  time.Duration `koanf:"scan_timeout"`
	// ScanOnStartup runs the first scan immediately instead of waiting one
	// poll interval.
	ScanOnStartup bool `koanf:"scan_on_startup"`
}

// HubConfig configures the live broadcast channel.
type HubConfig struct {
	// QueueSize bounds each connection's outbound queue; when full the
	// oldest message is dropped.
	QueueSize       int           `koanf:"queue_size"`
	WriteWait       time.Duration `koanf:"write_wait"`
	PongWait        time.Duration `koanf:"pong_wait"`
	MaxMessageSize  int64         `koanf:"max_message_size"`
	EventBufferSize int64         `koanf:"event_buffer_size"`
}

// PingPeriod derives the ping interval from PongWait.
func (h HubConfig) PingPeriod() time.Duration {
	return (h.PongWait * 9) / 10
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds request limiting and webhook verification settings.
// Authentication itself is performed upstream.
type SecurityConfig struct {
	// WebhookToken must match the X-Goog-Channel-Token header of storage
	// change notifications. Empty disables the webhook endpoint.
	WebhookToken      string        `koanf:"webhook_token"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// OfflineConfig configures the offline client.
type OfflineConfig struct {
	DataDir          string        `koanf:"data_dir"`
	ServerURL        string        `koanf:"server_url"`
	RootID           string        `koanf:"root_id"`
	ViewerID         string        `koanf:"viewer_id"`
	TranspositionKey string        `koanf:"transposition_key"`
	QuotaBytes       int64         `koanf:"quota_bytes"`
	MaxAttempts      int           `koanf:"max_attempts"`
	ReconnectDelay   time.Duration `koanf:"reconnect_delay"`
	RequestTimeout   time.Duration `koanf:"request_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
