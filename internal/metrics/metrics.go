// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Storage Provider Metrics
	StorageRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_requests_total",
			Help: "Total number of storage provider calls by outcome",
		},
		[]string{"operation", "result"}, // result: success, throttled, auth, not_found, rejected, error
	)

	StorageRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_request_duration_seconds",
			Help:    "Duration of storage provider calls including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	StorageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_retries_total",
			Help: "Total number of throttled storage calls that were retried",
		},
		[]string{"operation"},
	)

	StorageLimiterWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storage_limiter_wait_seconds",
			Help:    "Time spent waiting for a token from the shared storage rate limiter",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	// Cache Metrics (General)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "listing", "metadata"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Scan and Sync Metrics
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Duration of folder tree scans in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"root"},
	)

	ScanItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scan_items",
			Help: "Number of items in the current snapshot",
		},
		[]string{"root"},
	)

	ScanSkippedSubtrees = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_skipped_subtrees_total",
			Help: "Total number of folder subtrees skipped because their listing failed",
		},
		[]string{"root"},
	)

	ScanFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_failures_total",
			Help: "Total number of scans that failed and left the previous snapshot in place",
		},
		[]string{"root", "reason"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of last successful scan",
		},
		[]string{"root"},
	)

	SyncState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_state",
			Help: "Sync engine state (0=idle, 1=scanning, 2=diffing, 3=publishing)",
		},
		[]string{"root"},
	)

	SyncTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_triggers_total",
			Help: "Total number of scan triggers by reason and whether they were coalesced",
		},
		[]string{"reason", "coalesced"},
	)

	ChangeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_events_total",
			Help: "Total number of change events produced by diffing",
		},
		[]string{"type"},
	)

	// Event Bus Metrics
	EventBusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_messages_published_total",
			Help: "Total number of messages published to the in-process event bus",
		},
		[]string{"topic"},
	)

	EventBusErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_errors_total",
			Help: "Total number of event bus publish or decode errors",
		},
		[]string{"topic", "stage"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_viewers",
			Help: "Current number of distinct viewers with at least one connection",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of queued messages dropped because a connection fell behind",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Offline Client Metrics
	OfflineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_queue_depth",
			Help: "Number of pending offline actions",
		},
	)

	OfflineCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_cache_bytes",
			Help: "Total bytes of cached blobs",
		},
	)

	OfflineCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_cache_entries",
			Help: "Number of cached items",
		},
	)

	OfflineEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_evictions_total",
			Help: "Total number of cache entries evicted to stay under quota",
		},
	)

	OfflineQueueOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_queue_outcomes_total",
			Help: "Outcomes of replayed offline actions",
		},
		[]string{"action", "outcome"}, // outcome: applied, rejected, retrying, exhausted
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offline_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStorageCall records one logical storage call; result is one of
// success, throttled, auth, not_found, rejected or error.
func RecordStorageCall(operation, result string, duration time.Duration) {
	StorageRequests.WithLabelValues(operation, result).Inc()
	StorageRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordScan records the outcome of one scan of root.
func RecordScan(root string, duration time.Duration, items, skipped int, err error) {
	ScanDuration.WithLabelValues(root).Observe(duration.Seconds())
	if err != nil {
		return
	}
	ScanItems.WithLabelValues(root).Set(float64(items))
	if skipped > 0 {
		ScanSkippedSubtrees.WithLabelValues(root).Add(float64(skipped))
	}
	SyncLastSuccess.WithLabelValues(root).Set(float64(time.Now().Unix()))
}

// RecordScanFailure counts a failed scan under a coarse reason label.
func RecordScanFailure(root, reason string) {
	ScanFailures.WithLabelValues(root, reason).Inc()
}

// RecordTrigger counts a scan trigger.
func RecordTrigger(reason string, coalesced bool) {
	c := "false"
	if coalesced {
		c = "true"
	}
	SyncTriggers.WithLabelValues(reason, c).Inc()
}
