// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/content", "200"))
	RecordAPIRequest("GET", "/api/v1/content", "200", 15*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/content", "200"))

	if after-before != 1 {
		t.Errorf("api_requests_total delta = %v, want 1", after-before)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active requests = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active requests = %v, want %v", got, before)
	}
}

func TestRecordStorageCall(t *testing.T) {
	before := testutil.ToFloat64(StorageRequests.WithLabelValues("list_children", "throttled"))
	RecordStorageCall("list_children", "throttled", time.Second)
	after := testutil.ToFloat64(StorageRequests.WithLabelValues("list_children", "throttled"))
	if after-before != 1 {
		t.Errorf("storage_requests_total delta = %v, want 1", after-before)
	}
}

func TestRecordScan(t *testing.T) {
	root := "metrics-test-root"

	RecordScan(root, 2*time.Second, 42, 3, nil)
	if got := testutil.ToFloat64(ScanItems.WithLabelValues(root)); got != 42 {
		t.Errorf("scan_items = %v, want 42", got)
	}
	if got := testutil.ToFloat64(ScanSkippedSubtrees.WithLabelValues(root)); got != 3 {
		t.Errorf("scan_skipped_subtrees_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(SyncLastSuccess.WithLabelValues(root)); got == 0 {
		t.Error("expected last success timestamp to be set")
	}

	// A failed scan leaves the item gauge alone.
	RecordScan(root, time.Second, 0, 0, errors.New("root unavailable"))
	if got := testutil.ToFloat64(ScanItems.WithLabelValues(root)); got != 42 {
		t.Errorf("scan_items after failure = %v, want 42", got)
	}

	RecordScanFailure(root, "auth")
	if got := testutil.ToFloat64(ScanFailures.WithLabelValues(root, "auth")); got != 1 {
		t.Errorf("scan_failures_total = %v, want 1", got)
	}
}

func TestRecordTrigger(t *testing.T) {
	before := testutil.ToFloat64(SyncTriggers.WithLabelValues("webhook", "true"))
	RecordTrigger("webhook", true)
	if got := testutil.ToFloat64(SyncTriggers.WithLabelValues("webhook", "true")); got != before+1 {
		t.Errorf("sync_triggers_total = %v, want %v", got, before+1)
	}
}

// TestMetricGathering checks that every collector lints cleanly.
func TestMetricGathering(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint failed: %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric %s: %s", p.Metric, p.Text)
	}
}
