// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package index builds content snapshots by walking a storage folder tree.
//
// The walk is an iterative breadth-first worklist with a visited set, so the
// tree may be arbitrarily deep and may contain cycles or shortcuts back to
// ancestors. Folders of one level are listed concurrently; results are merged
// in listing order so discovery order is stable between scans.
//
// Filenames that do not follow <Title>_<Key>.<ext> still become items titled
// with the raw filename and an Unknown key. Unclassified extensions stay in
// the snapshot for diagnostics; the view layer hides them.
package index
