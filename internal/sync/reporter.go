// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"context"
	"errors"

	"github.com/tomtom215/setlist/internal/index"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/storage"
)

// FailureReporter receives failed scans. report may be partial or nil.
type FailureReporter interface {
	ReportScanFailure(rootID string, err error, report *index.ScanReport)
}

// LogReporter reports failures to the structured log.
type LogReporter struct{}

// ReportScanFailure implements FailureReporter.
func (LogReporter) ReportScanFailure(rootID string, err error, report *index.ScanReport) {
	event := logging.Error().Err(err).Str("root_id", rootID).Str("reason", failureReason(err))
	if report != nil {
		event = event.Int("folders_listed", report.Folders).Dur("duration", report.Duration)
	}
	event.Msg("Scan failed; previous snapshot remains authoritative")
}

// failureReason maps a scan error to a coarse metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, storage.ErrAuthRequired):
		return "auth"
	case errors.Is(err, storage.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, index.ErrScanFailed):
		return "root_unavailable"
	default:
		return "error"
	}
}
