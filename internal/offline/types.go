// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package offline

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/setlist/internal/models"
)

var (
	// ErrDefinitive marks a rejection that will never succeed on retry, such
	// as an item that no longer exists or is not visible to the viewer.
	ErrDefinitive = errors.New("action rejected by server")

	// ErrQueueActionFailed marks a queue entry discarded after its final
	// attempt.
	ErrQueueActionFailed = errors.New("offline action failed")

	// ErrNotCached is returned when reading an item that is not cached.
	ErrNotCached = errors.New("item not cached")

	// ErrStoreClosed is returned by every Store call after Close.
	ErrStoreClosed = errors.New("offline store closed")
)

// Action is a user request that needs a server round trip.
type Action string

const (
	ActionMarkAvailable   Action = "mark_available"
	ActionMarkUnavailable Action = "mark_unavailable"
	ActionAck             Action = "ack"
)

// QueueState tracks a queue entry through reconciliation.
type QueueState string

const (
	StatePending  QueueState = "pending"
	StateRetrying QueueState = "retrying"
	StateFailed   QueueState = "failed"
)

// QueueEntry is an action recorded while offline. Seq orders the queue.
type QueueEntry struct {
	Seq           uint64     `json:"seq"`
	LocalID       string     `json:"local_id"`
	Action        Action     `json:"action"`
	ContentID     string     `json:"content_id,omitempty"`
	Cursor        string     `json:"cursor,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Attempts      int        `json:"attempts"`
	State         QueueState `json:"state"`
	LastAttemptAt time.Time  `json:"last_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// String renders the tagged state, e.g. "retrying(2)".
func (e QueueEntry) String() string {
	if e.State == StateRetrying {
		return fmt.Sprintf("%s(%d)", e.State, e.Attempts)
	}
	return string(e.State)
}

// CacheEntry describes a cached blob. Item always holds the latest metadata
// seen from the server; Revision is the revision of the stored bytes and
// lags Item.Revision until the blob is refreshed.
type CacheEntry struct {
	ContentID    string             `json:"content_id"`
	Revision     string             `json:"revision"`
	Item         models.ContentItem `json:"item"`
	CachedAt     time.Time          `json:"cached_at"`
	LastAccessed time.Time          `json:"last_accessed"`
	SizeBytes    int64              `json:"size_bytes"`
}

// Stale reports whether the stored bytes are older than the known metadata.
func (c CacheEntry) Stale() bool {
	return c.Item.Revision != "" && c.Revision != c.Item.Revision
}

// NoticeLevel grades a Notice.
type NoticeLevel string

const (
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is surfaced to the user when a queued action is discarded.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Entry   QueueEntry  `json:"entry"`
	Message string      `json:"message"`
}
