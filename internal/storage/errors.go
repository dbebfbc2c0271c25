// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRateLimitExceeded is returned once the throttle retry ceiling is hit.
	// Retry later; it is not fatal for the viewer.
	ErrRateLimitExceeded = errors.New("storage rate limit exceeded")

	// ErrAuthRequired means the credential is missing, expired or revoked.
	// Callers should trigger re-authentication; it is never retried.
	ErrAuthRequired = errors.New("storage authentication required")

	// ErrNotFound means the entry does not exist or is not accessible.
	ErrNotFound = errors.New("storage entry not found")

	// ErrProviderUnavailable is returned while the circuit breaker is open.
	ErrProviderUnavailable = errors.New("storage provider unavailable")

	// ErrThrottled marks a single throttled provider response. The client
	// retries these and converts exhaustion into ErrRateLimitExceeded.
	ErrThrottled = errors.New("storage request throttled")

	// errServer marks a 5xx provider response, retried like throttling.
	errServer = errors.New("storage server error")
)

// Drive reasons that signal throttling when returned with 403.
var throttleReasons = map[string]struct{}{
	"rateLimitExceeded":     {},
	"userRateLimitExceeded": {},
	"dailyLimitExceeded":    {},
}

// Drive reasons that signal a credential problem when returned with 403.
var authReasons = map[string]struct{}{
	"authError":               {},
	"insufficientScopes":      {},
	"insufficientPermissions": {},
}

// ProviderError is a non-2xx response from the storage provider.
type ProviderError struct {
	StatusCode int
	Reason     string
	Message    string
	// RetryAfter is the server-requested delay, zero if absent.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("storage provider returned %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("storage provider returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap classifies the response so callers can use errors.Is with the
// package sentinels.
func (e *ProviderError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrThrottled
	case e.StatusCode == http.StatusForbidden:
		if _, ok := throttleReasons[e.Reason]; ok {
			return ErrThrottled
		}
		if _, ok := authReasons[e.Reason]; ok {
			return ErrAuthRequired
		}
		return nil
	case e.StatusCode == http.StatusUnauthorized:
		return ErrAuthRequired
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode >= 500:
		return errServer
	default:
		return nil
	}
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, errServer)
}

// resultLabel maps an error to the storage_requests_total result label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRateLimitExceeded), errors.Is(err, ErrThrottled):
		return "throttled"
	case errors.Is(err, ErrAuthRequired):
		return "auth"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProviderUnavailable):
		return "rejected"
	default:
		return "error"
	}
}
