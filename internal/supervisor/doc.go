// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package supervisor runs Setlist's long-lived components under a suture
supervisor tree.

The tree has three layers, each its own supervisor so a crash in one does
not restart the others:

	setlist
	├── index-layer   sync manager (scans and snapshots)
	├── live-layer    event bus bridge, WebSocket hub, offline listener
	└── api-layer     HTTP server

Services are adapters in the services subpackage. Each translates a
component's own lifecycle (Start/Stop, RunWithContext, ListenAndServe) into
suture's Serve(ctx) error.

Restart policy is suture's: a service that fails more than FailureThreshold
times within the decay window is held back for FailureBackoff before the
next restart. Events are logged through sutureslog.
*/
package supervisor
