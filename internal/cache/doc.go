// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package cache provides a thread-safe in-memory cache with TTL support.

The storage client uses it to absorb bursts of near-simultaneous scans:
folder listings and entry metadata are kept for a short TTL (30 seconds by
default) keyed by folder or entry id. Downloads are never cached here.

# Usage

	c := cache.New(30 * time.Second)
	defer c.Close()

	c.Set("list:"+folderID, entries)
	if v, ok := c.Get("list:" + folderID); ok {
	    entries = v.([]storage.Entry)
	}

# Invalidation

Entries expire lazily on Get and are swept periodically in the background.
Callers that learn about a change out of band (a storage webhook) drop
entries explicitly:

	c.Delete("list:" + folderID)
	c.Clear()

# Key Conventions

	list:<folderID>   children of a folder
	meta:<entryID>    metadata for a single entry

# Thread Safety

All methods are safe for concurrent use. Statistics are tracked under the
same lock as the entries; GetStats feeds the sync status endpoint.
*/
package cache
