// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import "github.com/tomtom215/setlist/internal/models"

// Diff compares two snapshots by item id.
//
//   - id only in next: Added
//   - id in both with a different revision: Modified, carrying the prior item
//   - id only in prev: Removed, carrying the last known item
//
// Added and Modified events follow next's discovery order; Removed events
// follow prev's order and come last. A nil prev is the first scan of a root:
// every item in next is Added.
func Diff(prev, next *models.Snapshot) []models.ChangeEvent {
	if next == nil {
		return nil
	}

	var events []models.ChangeEvent
	for _, item := range next.Items() {
		if prev == nil {
			events = append(events, models.ChangeEvent{Type: models.ChangeAdded, Item: item})
			continue
		}
		old, ok := prev.Get(item.ID)
		switch {
		case !ok:
			events = append(events, models.ChangeEvent{Type: models.ChangeAdded, Item: item})
		case old.Revision != item.Revision:
			events = append(events, models.ChangeEvent{
				Type:             models.ChangeModified,
				Item:             item,
				PreviousRevision: old.Revision,
				Previous:         &old,
			})
		}
	}

	if prev == nil {
		return events
	}
	for _, old := range prev.Items() {
		if _, ok := next.Get(old.ID); !ok {
			events = append(events, models.ChangeEvent{Type: models.ChangeRemoved, Item: old})
		}
	}
	return events
}
