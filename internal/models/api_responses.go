// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package models

import (
	"time"
)

// APIResponse is the envelope used by every JSON endpoint.
//
// Success:
//
//	{
//	  "status": "success",
//	  "data": {"root_id": "...", "cursor": "...", "items": [...]},
//	  "metadata": {"timestamp": "2026-01-01T12:00:00Z"}
//	}
//
// Error:
//
//	{
//	  "status": "error",
//	  "error": {"code": "AUTH_REQUIRED", "message": "storage credentials expired"},
//	  "metadata": {"timestamp": "2026-01-01T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
//
// Codes in use:
//   - VALIDATION_ERROR: invalid viewer headers or request body
//   - NOT_FOUND: unknown content id, or not visible to the viewer
//   - AUTH_REQUIRED: storage credentials need re-authentication
//   - RATE_LIMIT_EXCEEDED: provider quota exhausted after retries
//   - SNAPSHOT_UNAVAILABLE: no completed scan yet for the root
//   - UNAUTHORIZED: webhook token mismatch
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ContentListing is the payload of the filtered listing call.
type ContentListing struct {
	RootID string        `json:"root_id"`
	Cursor string        `json:"cursor"`
	Items  []ContentItem `json:"items"`
}

// AckRequest records the last cursor a client applied.
type AckRequest struct {
	RootID string `json:"root_id" validate:"required,max=256"`
	Cursor string `json:"cursor" validate:"required,max=128"`
}

// SyncTriggerRequest asks for an immediate scan; an empty RootID means all roots.
type SyncTriggerRequest struct {
	RootID string `json:"root_id" validate:"omitempty,max=256"`
}
