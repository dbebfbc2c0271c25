// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package metrics provides Prometheus metrics collection and export for observability.

Collectors are registered on the default registry with promauto and exposed
at /metrics by the API router:

	curl http://localhost:3870/metrics

# Available Metrics

API:
  - api_requests_total, api_request_duration_seconds, api_active_requests
  - api_rate_limit_hits_total

Storage provider:
  - storage_requests_total (operation, result)
  - storage_request_duration_seconds (operation)
  - storage_retries_total (operation)
  - storage_limiter_wait_seconds
  - cache_hits_total / cache_misses_total (cache_type: listing, metadata)
  - circuit_breaker_state, circuit_breaker_requests_total,
    circuit_breaker_consecutive_failures, circuit_breaker_state_transitions_total

Scanning and sync:
  - scan_duration_seconds, scan_items, scan_skipped_subtrees_total (root)
  - scan_failures_total (root, reason)
  - sync_state (root): 0=idle, 1=scanning, 2=diffing, 3=publishing
  - sync_last_success_timestamp (root)
  - sync_triggers_total (reason, coalesced)
  - change_events_total (type)

Live channel:
  - websocket_connections, websocket_viewers
  - websocket_messages_sent_total, websocket_messages_received_total
  - websocket_messages_dropped_total
  - websocket_errors_total (error_type)
  - eventbus_messages_published_total, eventbus_errors_total

Offline client:
  - offline_queue_depth, offline_cache_bytes, offline_cache_entries
  - offline_evictions_total
  - offline_queue_outcomes_total (action, outcome)
  - offline_reconcile_duration_seconds

# Example Queries

	# Throttled storage calls per minute
	rate(storage_requests_total{result="throttled"}[1m]) * 60

	# Slow consumers on the live channel
	rate(websocket_messages_dropped_total[5m])
*/
package metrics
