// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"context"
	"io"
	"time"
)

// Entry is a raw listing entry as reported by the provider.
type Entry struct {
	ID         string
	Name       string
	MimeType   string
	IsFolder   bool
	Size       int64
	Revision   string
	ModifiedAt time.Time
	Parents    []string

	// ShortcutTarget is set for shortcut entries; the entry itself carries
	// no content and the target must be resolved separately.
	ShortcutTarget       string
	ShortcutTargetFolder bool
}

// Provider is the raw REST surface of the storage service. Implementations
// perform exactly one HTTP request per call; paging, rate limiting, retries,
// caching and circuit breaking live in Client.
type Provider interface {
	// ListChildrenPage returns one page of folderID's children and the token
	// of the next page, or "" on the last page.
	ListChildrenPage(ctx context.Context, folderID, pageToken string) ([]Entry, string, error)
	GetEntry(ctx context.Context, id string) (Entry, error)
	Download(ctx context.Context, id string) (io.ReadCloser, error)
}

// TokenSource supplies the bearer credential for each provider request. The
// authentication collaborator implements it; refresh is its concern.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrAuthRequired
	}
	return string(s), nil
}
