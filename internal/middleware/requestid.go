// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package middleware

import (
	"net/http"

	"github.com/tomtom215/setlist/internal/logging"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// HeaderCorrelationID lets a caller continue an existing correlation.
const HeaderCorrelationID = "X-Correlation-ID"

// RequestID assigns each request an id, reusing one supplied by an upstream
// proxy, and stores it in the logging context together with a correlation
// id. Both are echoed back as response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = logging.GenerateRequestID()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		if cid := r.Header.Get(HeaderCorrelationID); cid != "" && len(cid) <= 128 {
			ctx = logging.ContextWithCorrelationID(ctx, cid)
		} else {
			ctx = logging.ContextWithNewCorrelationID(ctx)
		}

		w.Header().Set(HeaderRequestID, requestID)
		w.Header().Set(HeaderCorrelationID, logging.CorrelationIDFromContext(ctx))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
