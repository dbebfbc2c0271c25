// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/setlist/internal/logging"
	syncpkg "github.com/tomtom215/setlist/internal/sync"
	"github.com/tomtom215/setlist/internal/view"
)

// ContentListing returns the viewer's listing of a root.
//
// Responds 304 when If-None-Match carries the listing's current ETag and 503
// before the root's first successful scan.
func (h *Handler) ContentListing(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	viewer, _ := ViewerFromContext(r.Context())

	root, ok := h.resolveRoot(r)
	if !ok {
		respondDomainError(w, r, fmt.Errorf("%w: %s", syncpkg.ErrUnknownRoot, sanitizeLogValue(root)))
		return
	}
	snap, ok := h.sync.Current(root)
	if !ok {
		respondError(w, http.StatusServiceUnavailable, CodeNotReady, "Content index is still being built", nil)
		return
	}

	etag := listingETag(snap.Cursor(), viewer.TranspositionKey)
	w.Header().Set("ETag", etag)
	w.Header().Add("Vary", HeaderTranspositionKey)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	listing := view.ResolveSnapshot(snap, viewer)
	respondData(w, http.StatusOK, listing, start)
}

// ContentDownload streams one file. Content the viewer may not see is
// reported as not found.
func (h *Handler) ContentDownload(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	root, ok := h.resolveRoot(r)
	if !ok {
		respondDomainError(w, r, fmt.Errorf("%w: %s", syncpkg.ErrUnknownRoot, sanitizeLogValue(root)))
		return
	}
	snap, ok := h.sync.Current(root)
	if !ok {
		respondError(w, http.StatusServiceUnavailable, CodeNotReady, "Content index is still being built", nil)
		return
	}
	item, ok := snap.Get(id)
	if !ok || !view.Visible(item, viewer) {
		respondDomainError(w, r, fmt.Errorf("%w: %s", ErrNotVisible, sanitizeLogValue(id)))
		return
	}

	body, err := h.store.DownloadBytes(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, fmt.Errorf("download %s: %w", sanitizeLogValue(id), err))
		return
	}
	defer body.Close()

	if item.MimeType != "" {
		w.Header().Set("Content-Type", item.MimeType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("ETag", strconv.Quote(item.Revision))
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.Name))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, body)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("content_id", id).Int64("bytes", n).Msg("Download interrupted")
	}
}
