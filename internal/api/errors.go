// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/setlist/internal/storage"
	syncpkg "github.com/tomtom215/setlist/internal/sync"
)

// Error codes returned in APIError.Code.
const (
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnknownRoot        = "UNKNOWN_ROOT"
	CodeNotReady           = "SNAPSHOT_NOT_READY"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeStorageError       = "STORAGE_ERROR"
	CodeStorageAuth        = "STORAGE_AUTH_REQUIRED"
	CodeInvalidBody        = "INVALID_REQUEST_BODY"
	CodeForbidden          = "FORBIDDEN"
)

var (
	// ErrMissingViewer means the request carried no viewer identity.
	ErrMissingViewer = errors.New("viewer identity required")

	// ErrNotVisible hides content the viewer may not see. It is reported as
	// not found so clients cannot probe for other parts.
	ErrNotVisible = errors.New("content not visible to viewer")
)

// errorStatus maps a domain error onto an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ErrNotVisible):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, syncpkg.ErrUnknownRoot):
		return http.StatusNotFound, CodeUnknownRoot
	case errors.Is(err, storage.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, storage.ErrAuthRequired):
		return http.StatusBadGateway, CodeStorageAuth
	case errors.Is(err, storage.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, CodeServiceUnavailable
	case errors.Is(err, ErrMissingViewer):
		return http.StatusUnauthorized, CodeAuthRequired
	default:
		return http.StatusBadGateway, CodeStorageError
	}
}
