// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Snapshot is an immutable point-in-time view of every item discovered under
// one root folder. It is never mutated after NewSnapshot returns; the next
// scan produces a new Snapshot that supersedes it.
type Snapshot struct {
	rootID  string
	cursor  string
	builtAt time.Time
	items   map[string]ContentItem
	order   []string
}

// NewSnapshot copies items into a new Snapshot. Discovery order is the order
// of items; an id that appears more than once keeps its first occurrence.
func NewSnapshot(rootID string, items []ContentItem, builtAt time.Time) *Snapshot {
	s := &Snapshot{
		rootID:  rootID,
		builtAt: builtAt,
		items:   make(map[string]ContentItem, len(items)),
		order:   make([]string, 0, len(items)),
	}
	for _, item := range items {
		if _, seen := s.items[item.ID]; seen {
			continue
		}
		s.items[item.ID] = item
		s.order = append(s.order, item.ID)
	}
	s.cursor = computeCursor(s.items)
	return s
}

// computeCursor hashes the sorted (id, revision) set so that identical
// content always yields the identical cursor.
func computeCursor(items map[string]ContentItem) string {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write([]byte(items[id].Revision))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// RootID returns the scanned root folder id.
func (s *Snapshot) RootID() string { return s.rootID }

// Cursor returns the opaque "as of" token.
func (s *Snapshot) Cursor() string { return s.cursor }

// BuiltAt returns when the scan that produced the snapshot completed.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Len returns the number of items.
func (s *Snapshot) Len() int { return len(s.order) }

// Get returns the item with the given id.
func (s *Snapshot) Get(id string) (ContentItem, bool) {
	item, ok := s.items[id]
	return item, ok
}

// Items returns a copy of all items in discovery order.
func (s *Snapshot) Items() []ContentItem {
	out := make([]ContentItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// IDs returns a copy of the item ids in discovery order.
func (s *Snapshot) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
