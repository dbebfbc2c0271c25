// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/setlist/internal/cache"
	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
	syncpkg "github.com/tomtom215/setlist/internal/sync"
	ws "github.com/tomtom215/setlist/internal/websocket"
)

// SyncService is the part of sync.Manager the handlers use.
type SyncService interface {
	Current(rootID string) (*models.Snapshot, bool)
	HasRoot(rootID string) bool
	DefaultRoot() string
	Trigger(rootID, reason string) error
	Status() []syncpkg.Status
	Ready() bool
}

// ContentStore fetches file bytes from cloud storage. Implemented by
// storage.Client.
type ContentStore interface {
	DownloadBytes(ctx context.Context, id string) (io.ReadCloser, error)
	BreakerState() string
	CacheStats() cache.Stats
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_content.go: listing and download
//   - handlers_ws.go: WebSocket and acks
//   - handlers_sync.go: manual sync, status and storage webhook
//   - handlers_health.go: liveness and readiness
type Handler struct {
	sync      SyncService
	store     ContentStore
	wsHub     *ws.Hub
	acks      *AckStore
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a handler. wsHub may be nil, in which case the
// WebSocket endpoint answers 503.
func NewHandler(syncSvc SyncService, store ContentStore, wsHub *ws.Hub, cfg *config.Config) *Handler {
	return &Handler{
		sync:      syncSvc,
		store:     store,
		wsHub:     wsHub,
		acks:      NewAckStore(),
		config:    cfg,
		startTime: time.Now(),
	}
}

// Acks exposes the acknowledgement store.
func (h *Handler) Acks() *AckStore {
	return h.acks
}

// resolveRoot picks ?root= or the default root and checks it is watched.
func (h *Handler) resolveRoot(r *http.Request) (string, bool) {
	root := r.URL.Query().Get("root")
	if root == "" {
		root = h.sync.DefaultRoot()
	}
	return root, root != "" && h.sync.HasRoot(root)
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin; an empty one would bypass CORS entirely.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if h.config == nil {
		return true
	}

	for _, allowedOrigin := range h.config.Security.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
