// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
	syncpkg "github.com/tomtom215/setlist/internal/sync"
)

// Storage push-notification headers.
const (
	headerChannelToken  = "X-Goog-Channel-Token"
	headerResourceState = "X-Goog-Resource-State"
	headerChannelID     = "X-Goog-Channel-ID"
)

// resourceStateSync is the handshake sent when a channel is created; it
// carries no change.
const resourceStateSync = "sync"

// SyncStatusResponse reports engines and live connections.
type SyncStatusResponse struct {
	Roots        []syncpkg.Status `json:"roots"`
	Ready        bool             `json:"ready"`
	Breaker      string           `json:"breaker"`
	Cache        *CacheStatus     `json:"cache,omitempty"`
	Connections  int              `json:"connections"`
	Viewers      int              `json:"viewers"`
	Acknowledged map[string][]Ack `json:"acknowledged,omitempty"`
}

// CacheStatus summarizes the storage client's listing and metadata cache.
type CacheStatus struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Keys      int64 `json:"keys"`
	Evictions int64 `json:"evictions"`
}

// TriggerSync requests a rescan of one root, or all roots when the body
// names none. Scans run asynchronously; 202 means the request was queued or
// absorbed by a pending scan.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.SyncTriggerRequest
	if !decodeJSONBody(w, r, &req, true) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	if err := h.sync.Trigger(req.RootID, syncpkg.ReasonManual); err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("root", sanitizeLogValue(req.RootID)).Msg("Manual sync requested")

	respondData(w, http.StatusAccepted, map[string]string{"status": "queued"}, start)
}

// SyncStatus reports every engine plus hub, breaker and cache state.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := SyncStatusResponse{
		Roots: h.sync.Status(),
		Ready: h.sync.Ready(),
	}
	if h.store != nil {
		status.Breaker = h.store.BreakerState()
		stats := h.store.CacheStats()
		status.Cache = &CacheStatus{
			Hits:      stats.Hits,
			Misses:    stats.Misses,
			Keys:      stats.TotalKeys,
			Evictions: stats.Evictions,
		}
	}
	if h.wsHub != nil {
		status.Connections = h.wsHub.GetClientCount()
		status.Viewers = h.wsHub.GetViewerCount()
	}
	for _, st := range status.Roots {
		if acks := h.acks.ForRoot(st.RootID); len(acks) > 0 {
			if status.Acknowledged == nil {
				status.Acknowledged = make(map[string][]Ack)
			}
			status.Acknowledged[st.RootID] = acks
		}
	}
	respondData(w, http.StatusOK, status, start)
}

// StorageWebhook receives provider change notifications. The channel token
// must match the configured secret. Notifications are hints only: they
// trigger a rescan of every root and never carry content.
func (h *Handler) StorageWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	secret := ""
	if h.config != nil {
		secret = h.config.Security.WebhookToken
	}
	if secret == "" {
		respondError(w, http.StatusNotFound, CodeNotFound, "Webhook endpoint disabled", nil)
		return
	}
	token := r.Header.Get(headerChannelToken)
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		logging.Ctx(r.Context()).Warn().Str("channel", sanitizeLogValue(r.Header.Get(headerChannelID))).Msg("Webhook rejected: bad channel token")
		respondError(w, http.StatusForbidden, CodeForbidden, "Invalid channel token", nil)
		return
	}

	state := r.Header.Get(headerResourceState)
	if state == resourceStateSync {
		respondData(w, http.StatusOK, map[string]string{"status": "ignored"}, start)
		return
	}

	if err := h.sync.Trigger("", syncpkg.ReasonWebhook); err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Debug().Str("state", sanitizeLogValue(state)).Msg("Storage webhook triggered rescan")
	respondData(w, http.StatusAccepted, map[string]string{"status": "queued"}, start)
}
