// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package offline is the client side of setlist: a local cache of charts and
audio plus a queue of actions taken while disconnected.

State lives in BadgerDB under four key prefixes:

	cache:<id>   CacheEntry (metadata, blob revision, access time, size)
	blob:<id>    the cached bytes
	queue:<seq>  QueueEntry, seq from a Badger sequence so iteration is FIFO
	meta:*       last applied cursor and the queue sequence lease

Manager is the only writer. Online, MarkAvailable downloads and caches
before returning; offline it queues the request and IsAvailable reports
the intent immediately.

Reconciliation runs once per offline to online transition (SetOnline):

  - the full listing overwrites cached metadata; the server revision
    always wins, and a queued action only preserves availability intent
  - queued actions replay oldest first; definitive rejections are dropped
    with a warning Notice, transient failures move to retrying(n) and are
    dropped with an error Notice after MaxAttempts passes
  - the cache is evicted least recently accessed first down to the quota,
    skipping anything a queued action still references

Going offline cancels a pass in flight; entries not yet replayed stay
queued for the next one.

LiveListener connects to the server's live channel, applies change
batches as they arrive, acks their cursors, and drives SetOnline from the
connection state.
*/
package offline
