// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
)

// Viewer identity headers, set by the upstream identity layer.
const (
	HeaderViewerID         = "X-Viewer-ID"
	HeaderTranspositionKey = "X-Transposition-Key"
)

// Query parameter fallbacks for WebSocket handshakes from browsers.
const (
	queryViewerID = "viewer"
	queryKey      = "key"
)

type viewerContextKey struct{}

// ViewerFromContext returns the viewer stored by RequireViewer.
func ViewerFromContext(ctx context.Context) (models.ViewerContext, bool) {
	v, ok := ctx.Value(viewerContextKey{}).(models.ViewerContext)
	return v, ok
}

// viewerFromRequest reads and validates the viewer identity. Keys are matched
// case-insensitively against the vocabulary and stored in canonical form.
func viewerFromRequest(r *http.Request, allowQuery bool) (models.ViewerContext, *models.APIError) {
	id := strings.TrimSpace(r.Header.Get(HeaderViewerID))
	key := strings.TrimSpace(r.Header.Get(HeaderTranspositionKey))
	if allowQuery {
		q := r.URL.Query()
		if id == "" {
			id = strings.TrimSpace(q.Get(queryViewerID))
		}
		if key == "" {
			key = strings.TrimSpace(q.Get(queryKey))
		}
	}
	if id == "" {
		return models.ViewerContext{}, &models.APIError{Code: CodeAuthRequired, Message: ErrMissingViewer.Error()}
	}

	viewer := models.ViewerContext{ViewerID: id, TranspositionKey: models.TranspositionKey(key)}
	if canonical, ok := models.LookupTranspositionKey(key); ok {
		viewer.TranspositionKey = canonical
	}
	if apiErr := validateRequest(&viewer); apiErr != nil {
		return models.ViewerContext{}, apiErr
	}
	return viewer, nil
}

// requireViewer returns middleware that rejects requests without a valid
// viewer identity and stores the viewer in the request context.
func requireViewer(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer, apiErr := viewerFromRequest(r, allowQuery)
			if apiErr != nil {
				if apiErr.Code == CodeAuthRequired {
					respondError(w, http.StatusUnauthorized, apiErr.Code, apiErr.Message, nil)
					return
				}
				respondValidation(w, apiErr)
				return
			}
			ctx := context.WithValue(r.Context(), viewerContextKey{}, viewer)
			ctx = logging.ContextWithViewerID(ctx, viewer.ViewerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireViewer accepts the identity from headers only.
func RequireViewer() func(http.Handler) http.Handler { return requireViewer(false) }

// RequireViewerOrQuery also accepts ?viewer= and ?key=.
func RequireViewerOrQuery() func(http.Handler) http.Handler { return requireViewer(true) }
