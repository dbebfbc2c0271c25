// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package offline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
)

// DefaultMaxAttempts bounds how many reconciliation passes retry a queued
// action before it is discarded.
const DefaultMaxAttempts = 5

const noticeBuffer = 64

// Options configures a Manager.
type Options struct {
	// QuotaBytes caps total cached bytes. Zero disables eviction.
	QuotaBytes  int64
	MaxAttempts int
	Now         func() time.Time
}

// Manager is the offline client's single writer over its Store.
//
// Every cache and queue mutation runs under one lock. Reconcile holds that
// lock for its whole pass, so toggles issued mid-reconciliation wait for it
// instead of interleaving with the queue drain.
type Manager struct {
	store       *Store
	remote      Remote
	quota       int64
	maxAttempts int
	now         func() time.Time

	mu    sync.Mutex
	items map[string]models.ContentItem

	stateMu     sync.Mutex
	online      bool
	cancelRecon context.CancelFunc
	reconGen    uint64

	notices chan Notice
}

// NewManager creates a manager that starts offline.
func NewManager(store *Store, remote Remote, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:       store,
		remote:      remote,
		quota:       opts.QuotaBytes,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
		items:       make(map[string]models.ContentItem),
		notices:     make(chan Notice, noticeBuffer),
	}
}

// NewManagerFromConfig creates a manager from the offline config section.
func NewManagerFromConfig(cfg *config.OfflineConfig, store *Store, remote Remote) *Manager {
	return NewManager(store, remote, Options{
		QuotaBytes:  cfg.QuotaBytes,
		MaxAttempts: cfg.MaxAttempts,
	})
}

// Notices delivers discarded-action notices. Notices are dropped when
// nobody reads them; they are always logged.
func (m *Manager) Notices() <-chan Notice {
	return m.notices
}

// Online reports the current connectivity state.
func (m *Manager) Online() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.online
}

// MarkAvailable makes id available offline. Online, the blob is downloaded
// and cached before returning. Offline, the request is queued and the item
// reports as available immediately.
func (m *Manager) MarkAvailable(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Online() {
		return m.enqueueLocked(QueueEntry{Action: ActionMarkAvailable, ContentID: id})
	}

	item, ok := m.items[id]
	if !ok {
		if err := m.refreshItemsLocked(ctx); err != nil {
			return err
		}
		if item, ok = m.items[id]; !ok {
			return fmt.Errorf("%w: %s is not visible", ErrDefinitive, id)
		}
	}
	if err := m.downloadLocked(ctx, item); err != nil {
		return err
	}
	m.evictAndReport()
	return nil
}

// MarkUnavailable drops id from the offline cache, or queues the request
// while offline.
func (m *Manager) MarkUnavailable(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Online() {
		return m.enqueueLocked(QueueEntry{Action: ActionMarkUnavailable, ContentID: id})
	}
	if err := m.store.DeleteCache(id); err != nil {
		return err
	}
	m.updateGaugesLocked()
	return nil
}

// Ack reports cursor as applied, or queues the ack while offline.
func (m *Manager) Ack(ctx context.Context, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Online() {
		return m.enqueueLocked(QueueEntry{Action: ActionAck, Cursor: cursor})
	}
	return m.remote.Ack(ctx, cursor)
}

// Read returns the cached bytes of id.
func (m *Manager) Read(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ReadBlob(id, m.now())
}

// IsAvailable reports the optimistic availability of id: the latest queued
// intent if there is one, otherwise whether it is cached.
func (m *Manager) IsAvailable(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, err := m.store.Queue()
	if err != nil {
		return false, err
	}
	for i := len(queue) - 1; i >= 0; i-- {
		if queue[i].ContentID != id {
			continue
		}
		switch queue[i].Action {
		case ActionMarkAvailable:
			return true, nil
		case ActionMarkUnavailable:
			return false, nil
		}
	}
	_, err = m.store.GetCache(id)
	if errors.Is(err, ErrNotCached) {
		return false, nil
	}
	return err == nil, err
}

// Queue returns the pending actions oldest first.
func (m *Manager) Queue() ([]QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Queue()
}

// NeedsReconcile reports whether serverCursor differs from the last cursor
// this client applied.
func (m *Manager) NeedsReconcile(serverCursor string) (bool, error) {
	cursor, err := m.store.Cursor()
	if err != nil {
		return false, err
	}
	return cursor != serverCursor, nil
}

// SetOnline records a connectivity change. Going online runs one
// reconciliation pass and returns its result. Going offline cancels a
// pass in flight; entries it had not reached stay queued.
func (m *Manager) SetOnline(ctx context.Context, online bool) error {
	m.stateMu.Lock()
	if !online {
		wasOnline := m.online
		m.online = false
		if m.cancelRecon != nil {
			m.cancelRecon()
			m.cancelRecon = nil
		}
		m.stateMu.Unlock()
		if wasOnline {
			logging.Info().Msg("offline client disconnected")
		}
		return nil
	}
	if m.online {
		m.stateMu.Unlock()
		return nil
	}
	m.online = true
	rctx, cancel := context.WithCancel(ctx)
	m.reconGen++
	gen := m.reconGen
	m.cancelRecon = cancel
	m.stateMu.Unlock()

	defer func() {
		cancel()
		m.stateMu.Lock()
		if m.reconGen == gen {
			m.cancelRecon = nil
		}
		m.stateMu.Unlock()
	}()

	logging.Info().Msg("offline client connected, reconciling")
	return m.Reconcile(rctx)
}

// Reconcile brings the cache and queue in line with the server:
//
//  1. the full listing overwrites cached metadata; stale blobs are
//     re-downloaded and items gone from the listing are dropped unless a
//     queued action references them
//  2. the queue is replayed oldest first
//  3. the cache is evicted down to quota
//  4. the listing cursor is recorded
//
// When the listing cannot be fetched the queue is still replayed and the
// listing error is returned.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
		m.updateGaugesLocked()
	}()

	queue, err := m.store.Queue()
	if err != nil {
		return err
	}

	listing, listErr := m.remote.List(ctx)
	if listErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(listErr).Msg("listing unavailable, replaying queue without refresh")
	} else {
		m.setItemsLocked(listing.Items)
		if err := m.refreshCacheLocked(ctx, referenced(queue)); err != nil {
			return err
		}
	}

	if err := m.drainLocked(ctx, queue, listErr == nil); err != nil {
		return err
	}
	if _, err := m.evictLocked(); err != nil {
		return err
	}

	if listErr != nil {
		return fmt.Errorf("reconcile without listing: %w", listErr)
	}
	if err := m.store.SetCursor(listing.Cursor); err != nil {
		return err
	}
	logging.Info().Str("cursor", listing.Cursor).Int("items", len(listing.Items)).Msg("offline cache reconciled")
	return nil
}

// ApplyChanges applies a live change batch and records its cursor.
func (m *Manager) ApplyChanges(ctx context.Context, batch models.ChangeBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, err := m.store.Queue()
	if err != nil {
		return err
	}
	pending := referenced(queue)

	for _, ev := range batch.Events {
		id := ev.Item.ID
		switch ev.Type {
		case models.ChangeAdded:
			m.items[id] = ev.Item
		case models.ChangeModified:
			m.items[id] = ev.Item
			if err := m.refreshEntryLocked(ctx, id, ev.Item); err != nil {
				return err
			}
		case models.ChangeRemoved:
			delete(m.items, id)
			if pending[id] {
				continue
			}
			if err := m.store.DeleteCache(id); err != nil {
				return err
			}
		}
	}

	m.updateGaugesLocked()
	return m.store.SetCursor(batch.Cursor)
}

// Evict removes least recently accessed entries until the cache fits the
// quota. Entries referenced by a queued action are never evicted.
func (m *Manager) Evict() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.evictLocked()
	m.updateGaugesLocked()
	return n, err
}

func (m *Manager) enqueueLocked(e QueueEntry) error {
	e.LocalID = uuid.NewString()
	e.CreatedAt = m.now()
	queued, err := m.store.Enqueue(e)
	if err != nil {
		return fmt.Errorf("queue %s: %w", e.Action, err)
	}
	logging.Debug().
		Str("action", string(queued.Action)).
		Str("content_id", queued.ContentID).
		Uint64("seq", queued.Seq).
		Msg("offline action queued")
	m.updateGaugesLocked()
	return nil
}

func (m *Manager) setItemsLocked(items []models.ContentItem) {
	m.items = make(map[string]models.ContentItem, len(items))
	for _, it := range items {
		m.items[it.ID] = it
	}
}

func (m *Manager) refreshItemsLocked(ctx context.Context) error {
	listing, err := m.remote.List(ctx)
	if err != nil {
		return fmt.Errorf("fetch listing: %w", err)
	}
	m.setItemsLocked(listing.Items)
	return nil
}

func (m *Manager) downloadLocked(ctx context.Context, item models.ContentItem) error {
	blob, err := m.remote.Download(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("download %s: %w", item.ID, err)
	}
	now := m.now()
	entry := CacheEntry{
		ContentID:    item.ID,
		Revision:     item.Revision,
		Item:         item,
		CachedAt:     now,
		LastAccessed: now,
		SizeBytes:    int64(len(blob)),
	}
	if existing, err := m.store.GetCache(item.ID); err == nil {
		entry.LastAccessed = existing.LastAccessed
	}
	return m.store.PutCache(entry, blob)
}

// refreshCacheLocked applies the listing in m.items to every cache entry.
func (m *Manager) refreshCacheLocked(ctx context.Context, pending map[string]bool) error {
	entries, err := m.store.ListCache()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		item, ok := m.items[entry.ContentID]
		if !ok {
			if pending[entry.ContentID] {
				continue
			}
			if err := m.store.DeleteCache(entry.ContentID); err != nil {
				return err
			}
			logging.Debug().Str("content_id", entry.ContentID).Msg("dropped cached item removed on server")
			continue
		}
		if err := m.refreshEntryLocked(ctx, entry.ContentID, item); err != nil {
			return err
		}
	}
	return nil
}

// refreshEntryLocked overwrites a cached entry's metadata with item and
// re-downloads the blob when the revision moved. A failed download leaves
// the old bytes in place, marked stale, for the next pass.
func (m *Manager) refreshEntryLocked(ctx context.Context, id string, item models.ContentItem) error {
	entry, err := m.store.GetCache(id)
	if errors.Is(err, ErrNotCached) {
		return nil
	}
	if err != nil {
		return err
	}

	entry.Item = item
	if entry.Revision == item.Revision || !m.Online() {
		return m.store.PutCache(entry, nil)
	}

	blob, err := m.remote.Download(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).Str("content_id", id).Msg("stale cached item not refreshed")
		return m.store.PutCache(entry, nil)
	}
	entry.Revision = item.Revision
	entry.SizeBytes = int64(len(blob))
	entry.CachedAt = m.now()
	return m.store.PutCache(entry, blob)
}

// drainLocked replays queue oldest first. After a transient failure, later
// entries for the same target are held back so they never overtake it.
func (m *Manager) drainLocked(ctx context.Context, queue []QueueEntry, haveListing bool) error {
	blocked := make(map[string]bool)

	for _, e := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := orderKey(e)
		if blocked[target] {
			continue
		}

		err := m.applyLocked(ctx, e, haveListing)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err == nil:
			if err := m.store.DeleteQueueEntry(e.Seq); err != nil {
				return err
			}
			metrics.OfflineQueueOutcomes.WithLabelValues(string(e.Action), "applied").Inc()

		case errors.Is(err, ErrDefinitive):
			if err := m.store.DeleteQueueEntry(e.Seq); err != nil {
				return err
			}
			metrics.OfflineQueueOutcomes.WithLabelValues(string(e.Action), "rejected").Inc()
			m.notify(Notice{Level: NoticeWarn, Entry: e, Message: err.Error()})

		default:
			e.Attempts++
			e.LastAttemptAt = m.now()
			e.LastError = err.Error()
			if e.Attempts >= m.maxAttempts {
				e.State = StateFailed
				if err := m.store.DeleteQueueEntry(e.Seq); err != nil {
					return err
				}
				metrics.OfflineQueueOutcomes.WithLabelValues(string(e.Action), "exhausted").Inc()
				failed := fmt.Errorf("%w after %d attempts: %w", ErrQueueActionFailed, e.Attempts, err)
				m.notify(Notice{Level: NoticeError, Entry: e, Message: failed.Error()})
				continue
			}
			e.State = StateRetrying
			if err := m.store.UpdateQueueEntry(e); err != nil {
				return err
			}
			blocked[target] = true
			metrics.OfflineQueueOutcomes.WithLabelValues(string(e.Action), "retrying").Inc()
			logging.Warn().Err(err).
				Str("action", string(e.Action)).
				Str("content_id", e.ContentID).
				Str("state", e.String()).
				Msg("offline action will be retried")
		}
	}
	return nil
}

func (m *Manager) applyLocked(ctx context.Context, e QueueEntry, haveListing bool) error {
	switch e.Action {
	case ActionMarkAvailable:
		item, ok := m.items[e.ContentID]
		if !ok {
			if haveListing {
				return fmt.Errorf("%w: %s no longer exists or is not visible", ErrDefinitive, e.ContentID)
			}
			item = models.ContentItem{ID: e.ContentID}
		}
		return m.downloadLocked(ctx, item)
	case ActionMarkUnavailable:
		return m.store.DeleteCache(e.ContentID)
	case ActionAck:
		return m.remote.Ack(ctx, e.Cursor)
	}
	return fmt.Errorf("%w: unknown action %q", ErrDefinitive, e.Action)
}

func (m *Manager) notify(n Notice) {
	ev := logging.Warn()
	if n.Level == NoticeError {
		ev = logging.Error()
	}
	ev.Str("action", string(n.Entry.Action)).
		Str("content_id", n.Entry.ContentID).
		Str("local_id", n.Entry.LocalID).
		Int("attempts", n.Entry.Attempts).
		Msg("offline action discarded: " + n.Message)

	select {
	case m.notices <- n:
	default:
	}
}

func (m *Manager) evictAndReport() {
	if _, err := m.evictLocked(); err != nil {
		logging.Warn().Err(err).Msg("offline cache eviction failed")
	}
	m.updateGaugesLocked()
}

func (m *Manager) evictLocked() (int, error) {
	if m.quota <= 0 {
		return 0, nil
	}
	entries, err := m.store.ListCache()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.SizeBytes
	}
	if total <= m.quota {
		return 0, nil
	}

	queue, err := m.store.Queue()
	if err != nil {
		return 0, err
	}
	pinned := referenced(queue)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastAccessed.Before(entries[j].LastAccessed)
	})

	evicted := 0
	for _, e := range entries {
		if total <= m.quota {
			break
		}
		if pinned[e.ContentID] {
			continue
		}
		if err := m.store.DeleteCache(e.ContentID); err != nil {
			return evicted, err
		}
		total -= e.SizeBytes
		evicted++
		metrics.OfflineEvictions.Inc()
	}
	if total > m.quota {
		logging.Warn().Int64("cached_bytes", total).Int64("quota_bytes", m.quota).
			Msg("offline cache over quota; remaining entries are pinned by queued actions")
	}
	return evicted, nil
}

func (m *Manager) updateGaugesLocked() {
	if queue, err := m.store.Queue(); err == nil {
		metrics.OfflineQueueDepth.Set(float64(len(queue)))
	}
	if entries, err := m.store.ListCache(); err == nil {
		var total int64
		for _, e := range entries {
			total += e.SizeBytes
		}
		metrics.OfflineCacheEntries.Set(float64(len(entries)))
		metrics.OfflineCacheBytes.Set(float64(total))
	}
}

// referenced returns the content ids named by queue entries.
func referenced(queue []QueueEntry) map[string]bool {
	ids := make(map[string]bool, len(queue))
	for _, e := range queue {
		if e.ContentID != "" {
			ids[e.ContentID] = true
		}
	}
	return ids
}

func orderKey(e QueueEntry) string {
	if e.Action == ActionAck {
		return "ack"
	}
	return "item:" + e.ContentID
}
