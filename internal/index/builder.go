// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package index

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/naming"
	"github.com/tomtom215/setlist/internal/storage"
)

var (
	// ErrScanFailed means the root folder itself could not be listed. No
	// snapshot is produced.
	ErrScanFailed = errors.New("scan failed")

	// ErrSubtreeUnavailable wraps the cause of each skipped subtree.
	ErrSubtreeUnavailable = errors.New("subtree unavailable")
)

// DefaultWorkers is the number of folders listed concurrently per level.
const DefaultWorkers = 4

// Lister is the part of the storage client the builder needs.
// *storage.Client implements it.
type Lister interface {
	ListChildren(ctx context.Context, folderID string) ([]storage.Entry, error)
	GetEntryMetadata(ctx context.Context, id string) (storage.Entry, error)
}

// SkippedSubtree records a folder whose listing failed.
type SkippedSubtree struct {
	FolderID string `json:"folder_id"`
	Path     string `json:"path"`
	Err      error  `json:"-"`
	Reason   string `json:"reason"`
}

// ScanReport summarizes one BuildSnapshot call. Unparseable counts charts
// with no <Title>_<Token> name, which every viewer sees under the Unknown key.
type ScanReport struct {
	RootID              string           `json:"root_id"`
	StartedAt           time.Time        `json:"started_at"`
	Duration            time.Duration    `json:"duration"`
	Folders             int              `json:"folders"`
	Files               int              `json:"files"`
	Unparseable         int              `json:"unparseable"`
	Unclassified        int              `json:"unclassified"`
	Duplicates          int              `json:"duplicates"`
	UnresolvedShortcuts int              `json:"unresolved_shortcuts"`
	Skipped             []SkippedSubtree `json:"skipped,omitempty"`
}

// Builder walks a folder tree and produces snapshots.
type Builder struct {
	lister  Lister
	workers int
	now     func() time.Time
}

// NewBuilder creates a builder that lists up to workers folders at once.
// The shared storage limiter still bounds the overall request rate.
func NewBuilder(lister Lister, workers int) *Builder {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Builder{lister: lister, workers: workers, now: time.Now}
}

type folderTask struct {
	id   string
	path string
}

type listing struct {
	entries []storage.Entry
	err     error
}

// BuildSnapshot scans the tree under rootID breadth-first. Folders are
// tracked in a visited set so cycles and re-parented folders are listed at
// most once. A failed child listing skips that subtree; a failed root
// listing or a cancelled ctx returns an error and no snapshot.
func (b *Builder) BuildSnapshot(ctx context.Context, rootID string) (*models.Snapshot, *ScanReport, error) {
	report := &ScanReport{RootID: rootID, StartedAt: b.now()}
	defer func() { report.Duration = b.now().Sub(report.StartedAt) }()

	logger := logging.Ctx(ctx).With().Str("root_id", rootID).Logger()

	visited := map[string]struct{}{rootID: {}}
	seen := make(map[string]struct{})
	var items []models.ContentItem

	level := []folderTask{{id: rootID}}
	for len(level) > 0 {
		results, err := b.listLevel(ctx, level)
		if err != nil {
			return nil, report, fmt.Errorf("scan of %s cancelled: %w", rootID, err)
		}

		var next []folderTask
		for i, task := range level {
			res := results[i]
			if res.err != nil {
				if task.id == rootID {
					return nil, report, fmt.Errorf("%w: root %s: %w", ErrScanFailed, rootID, res.err)
				}
				skipped := SkippedSubtree{
					FolderID: task.id,
					Path:     task.path,
					Err:      fmt.Errorf("%w: %w", ErrSubtreeUnavailable, res.err),
					Reason:   res.err.Error(),
				}
				report.Skipped = append(report.Skipped, skipped)
				logger.Warn().Err(res.err).Str("folder_id", task.id).Str("path", task.path).Msg("Skipping unavailable subtree")
				continue
			}
			report.Folders++

			for _, entry := range res.entries {
				if folderID, isFolder := folderTarget(entry); isFolder {
					if _, ok := visited[folderID]; ok {
						continue
					}
					visited[folderID] = struct{}{}
					next = append(next, folderTask{id: folderID, path: path.Join(task.path, entry.Name)})
					continue
				}

				if entry.ShortcutTarget != "" {
					target, err := b.lister.GetEntryMetadata(ctx, entry.ShortcutTarget)
					if err != nil {
						if ctx.Err() != nil {
							return nil, report, fmt.Errorf("scan of %s cancelled: %w", rootID, ctx.Err())
						}
						report.UnresolvedShortcuts++
						logger.Warn().Err(err).Str("shortcut_id", entry.ID).Str("target_id", entry.ShortcutTarget).Msg("Unresolved shortcut")
						continue
					}
					if target.IsFolder {
						if _, ok := visited[target.ID]; !ok {
							visited[target.ID] = struct{}{}
							next = append(next, folderTask{id: target.ID, path: path.Join(task.path, entry.Name)})
						}
						continue
					}
					entry = target
				}

				if _, dup := seen[entry.ID]; dup {
					report.Duplicates++
					continue
				}
				seen[entry.ID] = struct{}{}

				item, parsed := Classify(entry, task.path)
				report.Files++
				switch {
				case item.ContentType == models.ContentUnclassified:
					report.Unclassified++
				case item.ContentType == models.ContentChart && !parsed:
					report.Unparseable++
				}
				items = append(items, item)
			}
		}
		level = next
	}

	snap := models.NewSnapshot(rootID, items, b.now())
	logger.Debug().
		Int("items", snap.Len()).
		Int("folders", report.Folders).
		Int("skipped", len(report.Skipped)).
		Msg("Snapshot built")
	return snap, report, nil
}

// listLevel lists every folder of one BFS level with bounded concurrency.
// Results keep the order of level. Only cancellation is returned as an error.
func (b *Builder) listLevel(ctx context.Context, level []folderTask) ([]listing, error) {
	results := make([]listing, len(level))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, task := range level {
		g.Go(func() error {
			entries, err := b.lister.ListChildren(gctx, task.id)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = listing{entries: entries, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// folderTarget returns the folder to descend into for folders and folder
// shortcuts.
func folderTarget(e storage.Entry) (string, bool) {
	switch {
	case e.IsFolder:
		return e.ID, true
	case e.ShortcutTarget != "" && e.ShortcutTargetFolder:
		return e.ShortcutTarget, true
	default:
		return "", false
	}
}

// Classify turns a file entry found in folderPath into a ContentItem. Path
// is the folder path from the scan root, empty for files at the root. A
// name that does not follow the convention still yields an item titled
// with the raw filename and an Unknown key; parsed reports which case
// applied.
func Classify(e storage.Entry, folderPath string) (item models.ContentItem, parsed bool) {
	p := naming.Parse(e.Name)
	return models.ContentItem{
		ID:               e.ID,
		Title:            p.Title,
		TranspositionKey: p.TranspositionKey,
		ContentType:      p.ContentType,
		Path:             folderPath,
		Revision:         e.Revision,
		SizeBytes:        e.Size,
		MimeType:         e.MimeType,
		ModifiedAt:       e.ModifiedAt,
		Name:             e.Name,
	}, p.Parsed
}
