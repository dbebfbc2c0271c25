// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
)

// Validate checks the sections used by the server.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateHub(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateOffline checks the sections used by the offline client.
func (c *Config) ValidateOffline() error {
	o := c.Offline
	if o.DataDir == "" {
		return fmt.Errorf("OFFLINE_DATA_DIR is required")
	}
	if err := validateHTTPURL("OFFLINE_SERVER_URL", o.ServerURL); err != nil {
		return err
	}
	if o.RootID == "" {
		return fmt.Errorf("OFFLINE_ROOT_ID is required")
	}
	if o.ViewerID == "" {
		return fmt.Errorf("OFFLINE_VIEWER_ID is required")
	}
	k := models.TranspositionKey(o.TranspositionKey)
	if k == models.KeyUnknown || !k.Valid() {
		return fmt.Errorf("OFFLINE_TRANSPOSITION_KEY must be one of %v, got %q", models.TranspositionKeys(), o.TranspositionKey)
	}
	if o.QuotaBytes <= 0 {
		return fmt.Errorf("OFFLINE_QUOTA_BYTES must be positive, got %d", o.QuotaBytes)
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("OFFLINE_MAX_ATTEMPTS must be at least 1, got %d", o.MaxAttempts)
	}
	if o.ReconnectDelay <= 0 {
		return fmt.Errorf("OFFLINE_RECONNECT_DELAY must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	s := c.Storage
	if len(s.RootFolders) == 0 {
		return fmt.Errorf("STORAGE_ROOT_FOLDERS is required (comma-separated folder ids)")
	}
	seen := make(map[string]struct{}, len(s.RootFolders))
	for _, id := range s.RootFolders {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("STORAGE_ROOT_FOLDERS contains an empty folder id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("STORAGE_ROOT_FOLDERS contains duplicate folder id %q", id)
		}
		seen[id] = struct{}{}
	}
	if err := validateHTTPURL("STORAGE_BASE_URL", s.BaseURL); err != nil {
		return err
	}
	if s.QuotaPer100s <= 0 {
		return fmt.Errorf("STORAGE_QUOTA_PER_100S must be positive, got %d", s.QuotaPer100s)
	}
	if s.Burst < 1 {
		return fmt.Errorf("STORAGE_BURST must be at least 1, got %d", s.Burst)
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("STORAGE_MAX_ATTEMPTS must be at least 1, got %d", s.MaxAttempts)
	}
	if s.BackoffBase <= 0 || s.BackoffMax < s.BackoffBase {
		return fmt.Errorf("STORAGE_BACKOFF_BASE must be positive and not exceed STORAGE_BACKOFF_MAX (%v > %v)", s.BackoffBase, s.BackoffMax)
	}
	if s.CacheTTL < 0 {
		return fmt.Errorf("STORAGE_CACHE_TTL must not be negative")
	}
	if s.PageSize < 1 || s.PageSize > 1000 {
		return fmt.Errorf("STORAGE_PAGE_SIZE must be between 1 and 1000, got %d", s.PageSize)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("SYNC_POLL_INTERVAL must be positive")
	}
	if c.Sync.ScanTimeout <= 0 {
		return fmt.Errorf("SYNC_SCAN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateHub() error {
	h := c.Hub
	if h.QueueSize < 1 {
		return fmt.Errorf("HUB_QUEUE_SIZE must be at least 1, got %d", h.QueueSize)
	}
	if h.WriteWait <= 0 || h.PongWait <= 0 {
		return fmt.Errorf("HUB_WRITE_WAIT and HUB_PONG_WAIT must be positive")
	}
	if h.MaxMessageSize < 512 {
		return fmt.Errorf("HUB_MAX_MESSAGE_SIZE must be at least 512, got %d", h.MaxMessageSize)
	}
	if h.EventBufferSize < 1 {
		return fmt.Errorf("HUB_EVENT_BUFFER_SIZE must be at least 1, got %d", h.EventBufferSize)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if !s.RateLimitDisabled {
		if s.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", s.RateLimitReqs)
		}
		if s.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	if s.WebhookToken != "" && len(s.WebhookToken) < 16 {
		return fmt.Errorf("WEBHOOK_TOKEN must be at least 16 characters when set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}
