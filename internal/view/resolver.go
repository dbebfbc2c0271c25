// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package view decides which content a viewer sees.
//
// One predicate, Visible, serves both the full listing and live change
// events, so a viewer's listing and the updates pushed to them never
// disagree.
package view

import "github.com/tomtom215/setlist/internal/models"

// Visible reports whether viewer may see item:
//
//   - Unclassified items are never visible
//   - Audio is visible to everyone
//   - charts matching the viewer's key are visible
//   - charts with an Unknown key are visible to everyone, so a misnamed file
//     is never hidden from the whole band
func Visible(item models.ContentItem, viewer models.ViewerContext) bool {
	switch item.ContentType {
	case models.ContentUnclassified:
		return false
	case models.ContentAudio:
		return true
	}
	return item.TranspositionKey == viewer.TranspositionKey ||
		item.TranspositionKey == models.KeyUnknown
}

// Filter returns the visible subset of items in their original order.
func Filter(items []models.ContentItem, viewer models.ViewerContext) []models.ContentItem {
	out := make([]models.ContentItem, 0, len(items))
	for _, it := range items {
		if Visible(it, viewer) {
			out = append(out, it)
		}
	}
	return out
}

// ResolveSnapshot returns the viewer's listing of snap. A nil snapshot
// yields an empty listing.
func ResolveSnapshot(snap *models.Snapshot, viewer models.ViewerContext) models.ContentListing {
	if snap == nil {
		return models.ContentListing{Items: []models.ContentItem{}}
	}
	return models.ContentListing{
		RootID: snap.RootID(),
		Cursor: snap.Cursor(),
		Items:  Filter(snap.Items(), viewer),
	}
}

// ResolveEvent returns ev as viewer should see it. Removed events are judged
// on the removed item's last known state. A Modified event whose item
// crosses the viewer's visibility becomes Added or Removed for that viewer;
// the Removed form carries the item as the viewer last saw it. ok is false
// when the viewer should not hear about ev at all.
func ResolveEvent(ev models.ChangeEvent, viewer models.ViewerContext) (models.ChangeEvent, bool) {
	now := Visible(ev.Item, viewer)
	if ev.Type != models.ChangeModified || ev.Previous == nil {
		return ev, now
	}

	before := Visible(*ev.Previous, viewer)
	switch {
	case before && now:
		return ev, true
	case now:
		return models.ChangeEvent{Type: models.ChangeAdded, Item: ev.Item}, true
	case before:
		return models.ChangeEvent{Type: models.ChangeRemoved, Item: *ev.Previous}, true
	default:
		return models.ChangeEvent{}, false
	}
}

// ResolveEvents filters a batch for viewer. ok is false when nothing in the
// batch is visible.
func ResolveEvents(batch models.ChangeBatch, viewer models.ViewerContext) (filtered models.ChangeBatch, ok bool) {
	filtered = models.ChangeBatch{RootID: batch.RootID, Cursor: batch.Cursor}
	for _, ev := range batch.Events {
		if resolved, visible := ResolveEvent(ev, viewer); visible {
			filtered.Events = append(filtered.Events, resolved)
		}
	}
	return filtered, len(filtered.Events) > 0
}
