// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package models

// ChangeType classifies a ChangeEvent.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ChangeEvent is produced only by diffing two snapshots. For Removed events
// Item holds the last known state from the previous snapshot. Modified
// events carry that state in Previous, so a viewer whose view of the item
// changed can be told it appeared or disappeared.
type ChangeEvent struct {
	Type             ChangeType   `json:"type"`
	Item             ContentItem  `json:"item"`
	PreviousRevision string       `json:"previous_revision,omitempty"`
	Previous         *ContentItem `json:"previous,omitempty"`
}

// ChangeBatch is the ordered output of one diff pass for one root. Cursor is
// the cursor of the snapshot the events lead to.
type ChangeBatch struct {
	RootID string        `json:"root_id"`
	Cursor string        `json:"cursor"`
	Events []ChangeEvent `json:"events"`
}

// ScanFailure is broadcast when a scan of RootID fails and the previous
// snapshot (Cursor) stays authoritative.
type ScanFailure struct {
	RootID string `json:"root_id"`
	Cursor string `json:"cursor,omitempty"`
	Reason string `json:"reason"`
}
