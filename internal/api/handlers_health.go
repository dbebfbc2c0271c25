// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/setlist/internal/models"
)

// HealthLive handles liveness probe requests.
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// HealthReady handles readiness probe requests. The server is ready once
// every root has a snapshot and the storage breaker is not open; an open
// breaker still serves listings but cannot download.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	indexed := h.sync.Ready()
	breaker := "unknown"
	if h.store != nil {
		breaker = h.store.BreakerState()
	}
	ready := indexed && breaker != "open"

	data := map[string]interface{}{
		"ready":   ready,
		"indexed": indexed,
		"breaker": breaker,
	}

	status := http.StatusOK
	resp := &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now()},
	}
	if !ready {
		status = http.StatusServiceUnavailable
		resp.Status = "error"
		resp.Error = &models.APIError{Code: CodeServiceUnavailable, Message: "Service not ready", Details: data}
	}
	respondJSON(w, status, resp)
}
