// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package eventbus decouples the sync engines from the live broadcast hub.

Engines publish through Bus, which implements the engine's Publisher
interface on top of a Watermill GoChannel pub/sub:

	content.changes         models.ChangeBatch, one per successful scan with events
	content.snapshot_stale  models.ScanFailure, one per failed scan

Payloads are JSON encoded with goccy/go-json. Every message carries the
root id and cursor in its metadata so subscribers can route without
decoding.

Messages published while nobody is subscribed are dropped. Viewers recover
from that the same way they recover from a dropped connection: by fetching
the listing and comparing cursors.
*/
package eventbus
