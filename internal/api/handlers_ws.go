// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
	syncpkg "github.com/tomtom215/setlist/internal/sync"
	ws "github.com/tomtom215/setlist/internal/websocket"
)

// WebSocket upgrades the connection and attaches it to the hub for one root.
// The first message on the socket is a hello carrying the root's current
// cursor.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "WebSocket service unavailable", nil)
		return
	}

	viewer, _ := ViewerFromContext(r.Context())
	root, ok := h.resolveRoot(r)
	if !ok {
		respondDomainError(w, r, fmt.Errorf("%w: %s", syncpkg.ErrUnknownRoot, sanitizeLogValue(root)))
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn, viewer, root)
	if err := h.wsHub.Attach(r.Context(), client); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket attach failed")
		_ = conn.Close()
	}
}

// Acknowledge records the cursor a client has applied.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	viewer, _ := ViewerFromContext(r.Context())

	var req models.AckRequest
	if !decodeJSONBody(w, r, &req, false) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}
	if !h.sync.HasRoot(req.RootID) {
		respondDomainError(w, r, fmt.Errorf("%w: %s", syncpkg.ErrUnknownRoot, sanitizeLogValue(req.RootID)))
		return
	}

	ack := Ack{ViewerID: viewer.ViewerID, RootID: req.RootID, Cursor: req.Cursor, AckedAt: time.Now()}
	h.acks.Record(ack)

	resp := map[string]interface{}{"ack": ack}
	if snap, ok := h.sync.Current(req.RootID); ok {
		resp["current_cursor"] = snap.Cursor()
		resp["up_to_date"] = snap.Cursor() == req.Cursor
	}
	respondData(w, http.StatusOK, resp, start)
}
