// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package config provides centralized configuration management for Setlist.

Configuration is layered with Koanf v2:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: $CONFIG_PATH, ./config.yaml, /etc/setlist/config.yaml
 3. Environment variables

# Environment Variables

Every variable may carry the SETLIST_ prefix. Flat names map through a fixed
table; prefixed names may also use a double underscore for nesting:

	SETLIST_STORAGE_ROOT_FOLDERS=1AbC,2DeF   storage.root_folders
	SETLIST_HUB__QUEUE_SIZE=512             hub.queue_size
	LOG_LEVEL=debug                         logging.level

Storage:
  - STORAGE_ROOT_FOLDERS: comma-separated folder ids (required for the server)
  - STORAGE_ACCESS_TOKEN: static bearer token for the Drive API
  - STORAGE_QUOTA_PER_100S: provider quota (default: 1000)
  - STORAGE_MAX_ATTEMPTS: throttle retry ceiling (default: 5)
  - STORAGE_BACKOFF_BASE / STORAGE_BACKOFF_MAX: 500ms / 8s
  - STORAGE_CACHE_TTL: listing and metadata cache (default: 30s)

Sync and hub:
  - SYNC_POLL_INTERVAL: periodic scan (default: 5m)
  - HUB_QUEUE_SIZE: per-connection outbound queue (default: 256)

Server and security:
  - HTTP_HOST, HTTP_PORT (default: 0.0.0.0:3870)
  - WEBHOOK_TOKEN: expected X-Goog-Channel-Token
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT, CORS_ORIGINS

Offline client:
  - OFFLINE_DATA_DIR, OFFLINE_SERVER_URL, OFFLINE_ROOT_ID
  - OFFLINE_VIEWER_ID, OFFLINE_TRANSPOSITION_KEY
  - OFFLINE_QUOTA_BYTES (default: 512MB), OFFLINE_MAX_ATTEMPTS (default: 5)

Logging:
  - LOG_LEVEL, LOG_FORMAT (json|console), LOG_CALLER
*/
package config
