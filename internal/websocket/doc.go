// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package websocket pushes content changes to connected viewers.

Key Components:

  - Hub: owns the viewer registry (viewer id to connections) and fans out
    change batches, filtering each one through the view package
  - Client: one connection with its own bounded outbound queue
  - BusSubscriber: forwards event bus messages into the hub

Message Types:

	hello            first message; carries the root's current cursor
	content_changes  a ChangeBatch filtered to what the viewer can see
	snapshot_stale   the last scan failed; the previous listing still stands
	ping / pong      application-level keepalive from the client

Backpressure:

Each connection's queue holds at most HubConfig.QueueSize messages. When a
slow connection fills it, the oldest message is dropped and counted in
websocket_messages_dropped_total. A viewer that missed messages notices on
the next batch because its cursor no longer matches, and refetches the
listing.

Usage:

	hub := websocket.NewHub(cfg.Hub, syncManager)
	go hub.RunWithContext(ctx)

	bridge := websocket.NewBusSubscriber(hub, bus)
	if err := bridge.Start(ctx); err != nil { ... }

	// in the HTTP handler, after upgrading:
	client := websocket.NewClient(hub, conn, viewer, rootID)
	_ = hub.Attach(r.Context(), client)
*/
package websocket
