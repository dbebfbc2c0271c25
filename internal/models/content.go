// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package models provides the data types shared by the sync core, the HTTP
// layer and the offline client.
package models

import (
	"strings"
	"time"
)

// TranspositionKey is the musical-key variant of a chart an instrument needs.
type TranspositionKey string

// Closed transposition vocabulary. Unknown is assigned to anything that does
// not follow the naming convention and is visible to every viewer.
const (
	KeyBb       TranspositionKey = "Bb"
	KeyEb       TranspositionKey = "Eb"
	KeyConcert  TranspositionKey = "Concert"
	KeyBassClef TranspositionKey = "BassClef"
	KeyChords   TranspositionKey = "Chords"
	KeyLyrics   TranspositionKey = "Lyrics"
	KeyUnknown  TranspositionKey = "Unknown"
)

// transpositionVocabulary is the set of tokens recognised in filenames, in
// canonical spelling.
var transpositionVocabulary = []TranspositionKey{
	KeyBb, KeyEb, KeyConcert, KeyBassClef, KeyChords, KeyLyrics,
}

// TranspositionKeys returns the recognised tokens (excluding Unknown).
func TranspositionKeys() []TranspositionKey {
	out := make([]TranspositionKey, len(transpositionVocabulary))
	copy(out, transpositionVocabulary)
	return out
}

// LookupTranspositionKey resolves a filename token. An exact match wins;
// otherwise a case-insensitive match is accepted ("bb" -> Bb).
func LookupTranspositionKey(token string) (TranspositionKey, bool) {
	for _, k := range transpositionVocabulary {
		if string(k) == token {
			return k, true
		}
	}
	for _, k := range transpositionVocabulary {
		if strings.EqualFold(string(k), token) {
			return k, true
		}
	}
	return KeyUnknown, false
}

// Valid reports whether k is a canonical vocabulary key or Unknown.
func (k TranspositionKey) Valid() bool {
	if k == KeyUnknown {
		return true
	}
	for _, v := range transpositionVocabulary {
		if v == k {
			return true
		}
	}
	return false
}

// ContentType is derived from the file extension only.
type ContentType string

const (
	ContentChart        ContentType = "chart"
	ContentAudio        ContentType = "audio"
	ContentUnclassified ContentType = "unclassified"
)

// ContentItem is one discovered file.
type ContentItem struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	TranspositionKey TranspositionKey `json:"transposition_key"`
	ContentType      ContentType      `json:"content_type"`
	Path             string           `json:"path"`
	Revision         string           `json:"revision"`
	SizeBytes        int64            `json:"size_bytes"`
	MimeType         string           `json:"mime_type,omitempty"`
	ModifiedAt       time.Time        `json:"modified_at"`
	// Name is the raw filename as reported by the provider.
	Name string `json:"name"`
}

// ViewerContext identifies who is looking. It is supplied by the
// authentication layer and treated as read-only.
type ViewerContext struct {
	ViewerID         string           `json:"viewer_id" validate:"required,max=128"`
	TranspositionKey TranspositionKey `json:"transposition_key" validate:"required,transposition_key"`
}
