// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package api provides the HTTP surface of the Setlist server.

Every data endpoint is viewer-scoped. The viewer identity is established
upstream and arrives as two headers:

	X-Viewer-ID:          trumpet-2
	X-Transposition-Key:  Bb

Browsers cannot set headers on a WebSocket handshake, so /api/v1/ws also
accepts ?viewer= and ?key= query parameters.

Endpoints:

	GET  /api/v1/content                 viewer listing of a root (?root=)
	GET  /api/v1/content/{id}/download   file bytes, only if visible
	POST /api/v1/acks                    record the cursor a client applied
	GET  /api/v1/ws                      live change events
	POST /api/v1/sync                    request a rescan
	GET  /api/v1/sync/status             engine status per root
	POST /api/v1/webhooks/storage        provider change notification
	GET  /api/v1/health/live             liveness
	GET  /api/v1/health/ready            readiness
	GET  /metrics                        Prometheus

Responses use the models.APIResponse envelope except downloads, which stream
the raw file, and /metrics.
*/
package api
