// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package main is the entry point for the Setlist server.

Setlist watches one or more shared cloud folders of band charts and
recordings, keeps an in-memory index of them, and serves each band member a
view filtered to their instrument's transposition key. Changes found by a
rescan are pushed to connected members over WebSocket.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("setlist")
	├── IndexSupervisor ("index-layer")
	│   └── Sync Manager (one scan engine per root folder)
	├── LiveSupervisor ("live-layer")
	│   ├── WebSocket Hub
	│   └── Event bus bridge (bus -> hub)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, an optional config.yaml and
    SETLIST_* environment variables
 2. Logging: zerolog, bridged to slog for the supervisor
 3. Storage client: rate limited, retried and circuit-broken Drive access
 4. Index builder and sync manager
 5. Event bus and WebSocket hub
 6. Chi router and HTTP server

# Configuration

Required settings:

	SETLIST_STORAGE_ROOT_FOLDERS=folderA,folderB
	SETLIST_STORAGE_ACCESS_TOKEN=...

Optional:

	SETLIST_HTTP_PORT=3870
	SETLIST_SYNC_POLL_INTERVAL=5m
	SETLIST_WEBHOOK_TOKEN=...   (enables the change webhook)

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
server first, then the live layer, then the scan engines.
*/
package main
