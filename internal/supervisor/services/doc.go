// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package services adapts Setlist components to suture.Service.

Each adapter depends on a small interface rather than the concrete type, so
the supervisor package never imports the components it supervises:

  - HTTPServerService: ListenAndServe/Shutdown (net/http.Server)
  - SyncService: Start/Stop (sync.Manager)
  - WebSocketHubService: RunWithContext (websocket.Hub)
  - BusBridgeService: Start/Stop (websocket.BusSubscriber)
  - RunnerService: Run(ctx) (offline.LiveListener)

Every Serve returns ctx.Err() on a requested shutdown and a wrapped error on
failure, which suture treats as a restart signal.
*/
package services
