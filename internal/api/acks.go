// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"sort"
	"sync"
	"time"
)

// Ack is the last cursor a viewer reported as applied for a root.
type Ack struct {
	ViewerID string    `json:"viewer_id"`
	RootID   string    `json:"root_id"`
	Cursor   string    `json:"cursor"`
	AckedAt  time.Time `json:"acked_at"`
}

// AckStore keeps the latest acknowledgement per viewer and root. It is
// advisory: a lost ack only means the client reconciles against a newer
// cursor than it needed to.
type AckStore struct {
	mu   sync.RWMutex
	acks map[string]map[string]Ack
}

// NewAckStore creates an empty store.
func NewAckStore() *AckStore {
	return &AckStore{acks: make(map[string]map[string]Ack)}
}

// Record stores ack, replacing the viewer's previous ack for the root.
func (s *AckStore) Record(ack Ack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRoot, ok := s.acks[ack.ViewerID]
	if !ok {
		byRoot = make(map[string]Ack)
		s.acks[ack.ViewerID] = byRoot
	}
	byRoot[ack.RootID] = ack
}

// Get returns the viewer's last ack for root.
func (s *AckStore) Get(viewerID, rootID string) (Ack, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.acks[viewerID][rootID]
	return a, ok
}

// ForRoot lists the acks for root ordered by viewer id.
func (s *AckStore) ForRoot(rootID string) []Ack {
	s.mu.RLock()
	out := make([]Ack, 0, len(s.acks))
	for _, byRoot := range s.acks {
		if a, ok := byRoot[rootID]; ok {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ViewerID < out[j].ViewerID })
	return out
}
