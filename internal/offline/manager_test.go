// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package offline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/setlist/internal/models"
)

var errTransient = errors.New("connection reset")

// fakeRemote serves a mutable listing. downloadErr, when set, decides the
// outcome of each download.
type fakeRemote struct {
	mu          sync.Mutex
	cursor      string
	items       []models.ContentItem
	blobs       map[string]string
	listErr     error
	downloadErr func(id string) error
	ackErr      error
	acks        []string
	downloads   map[string]int

	// gate blocks every download until a value arrives; started reports
	// each blocked download.
	gate    chan struct{}
	started chan string
}

func newFakeRemote(items ...models.ContentItem) *fakeRemote {
	r := &fakeRemote{cursor: "c1", blobs: map[string]string{}, downloads: map[string]int{}}
	r.setItems(items...)
	return r
}

func (r *fakeRemote) setItems(items ...models.ContentItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
	for _, it := range items {
		r.blobs[it.ID] = it.ID + "@" + it.Revision
	}
}

func (r *fakeRemote) List(ctx context.Context) (models.ContentListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return models.ContentListing{}, r.listErr
	}
	return models.ContentListing{RootID: "root", Cursor: r.cursor, Items: append([]models.ContentItem(nil), r.items...)}, nil
}

func (r *fakeRemote) Download(ctx context.Context, id string) ([]byte, error) {
	if r.gate != nil {
		r.started <- id
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads[id]++
	if r.downloadErr != nil {
		if err := r.downloadErr(id); err != nil {
			return nil, err
		}
	}
	blob, ok := r.blobs[id]
	if !ok {
		return nil, &RemoteError{StatusCode: 404}
	}
	return []byte(blob), nil
}

func (r *fakeRemote) Ack(ctx context.Context, cursor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ackErr != nil {
		return r.ackErr
	}
	r.acks = append(r.acks, cursor)
	return nil
}

func (r *fakeRemote) downloadCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downloads[id]
}

// tickingClock advances one second per call so access order is strict.
type tickingClock struct{ n atomic.Int64 }

func (c *tickingClock) now() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(c.n.Add(1)) * time.Second)
}

func rev(id, revision string) models.ContentItem {
	return models.ContentItem{ID: id, Title: id, Revision: revision, ContentType: models.ContentChart}
}

func newTestManager(t *testing.T, remote Remote, opts Options) *Manager {
	t.Helper()
	if opts.Now == nil {
		opts.Now = (&tickingClock{}).now
	}
	return NewManager(openTestStore(t, ""), remote, opts)
}

func goOnline(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.SetOnline(context.Background(), true); err != nil {
		t.Fatalf("SetOnline(true) error = %v", err)
	}
}

func queueLen(t *testing.T, m *Manager) int {
	t.Helper()
	q, err := m.Queue()
	if err != nil {
		t.Fatal(err)
	}
	return len(q)
}

func drainNotices(m *Manager) []Notice {
	var out []Notice
	for {
		select {
		case n := <-m.Notices():
			out = append(out, n)
		default:
			return out
		}
	}
}

func TestManager_MarkAvailableOnline(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("blue", "r1"))
	m := newTestManager(t, remote, Options{})
	goOnline(t, m)

	if err := m.MarkAvailable(context.Background(), "blue"); err != nil {
		t.Fatalf("MarkAvailable() error = %v", err)
	}
	blob, err := m.Read("blue")
	if err != nil || string(blob) != "blue@r1" {
		t.Fatalf("Read() = %q, %v", blob, err)
	}
	if queueLen(t, m) != 0 {
		t.Error("online MarkAvailable should not queue")
	}

	if err := m.MarkAvailable(context.Background(), "ghost"); !errors.Is(err, ErrDefinitive) {
		t.Errorf("MarkAvailable(ghost) = %v, want ErrDefinitive", err)
	}

	if err := m.MarkUnavailable(context.Background(), "blue"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Read("blue"); !errors.Is(err, ErrNotCached) {
		t.Errorf("Read() after MarkUnavailable = %v, want ErrNotCached", err)
	}
}

func TestManager_OfflineToggleThenReconnect(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("Blue_Bb", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()

	if err := m.MarkAvailable(ctx, "Blue_Bb"); err != nil {
		t.Fatalf("offline MarkAvailable() error = %v", err)
	}
	if remote.downloadCount("Blue_Bb") != 0 {
		t.Fatal("offline MarkAvailable touched the network")
	}
	if ok, _ := m.IsAvailable("Blue_Bb"); !ok {
		t.Error("queued intent should report available")
	}
	if queueLen(t, m) != 1 {
		t.Fatalf("queue length = %d, want 1", queueLen(t, m))
	}

	goOnline(t, m)

	if blob, err := m.Read("Blue_Bb"); err != nil || string(blob) != "Blue_Bb@r1" {
		t.Fatalf("Read() = %q, %v", blob, err)
	}
	if queueLen(t, m) != 0 {
		t.Errorf("queue length after reconnect = %d, want 0", queueLen(t, m))
	}
	if need, _ := m.NeedsReconcile("c1"); need {
		t.Error("cursor should be recorded after reconciliation")
	}
	if need, _ := m.NeedsReconcile("c2"); !need {
		t.Error("a newer server cursor should need reconciliation")
	}
}

func TestManager_ReconnectRunsOncePerTransition(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"))
	m := newTestManager(t, remote, Options{})
	if err := m.MarkAvailable(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	goOnline(t, m)
	goOnline(t, m) // already online: no second pass

	if got := remote.downloadCount("a"); got != 1 {
		t.Errorf("downloads = %d, want 1", got)
	}
}

func TestManager_DefinitiveRejection(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()

	if err := m.MarkAvailable(ctx, "deleted-on-server"); err != nil {
		t.Fatal(err)
	}
	goOnline(t, m)

	if queueLen(t, m) != 0 {
		t.Error("definitively rejected entry should be discarded")
	}
	notices := drainNotices(m)
	if len(notices) != 1 || notices[0].Level != NoticeWarn || notices[0].Entry.ContentID != "deleted-on-server" {
		t.Errorf("notices = %+v", notices)
	}
}

func TestManager_TransientFailuresAreBounded(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"))
	remote.downloadErr = func(string) error { return errTransient }
	m := newTestManager(t, remote, Options{MaxAttempts: 3})
	ctx := context.Background()

	if err := m.MarkAvailable(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	goOnline(t, m)

	q, _ := m.Queue()
	if len(q) != 1 || q[0].State != StateRetrying || q[0].Attempts != 1 || q[0].String() != "retrying(1)" {
		t.Fatalf("queue after first pass = %+v", q)
	}

	for pass := 2; pass <= 3; pass++ {
		if err := m.Reconcile(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if queueLen(t, m) != 0 {
		t.Fatal("entry still queued after MaxAttempts passes")
	}
	notices := drainNotices(m)
	if len(notices) != 1 || notices[0].Level != NoticeError || notices[0].Entry.State != StateFailed {
		t.Errorf("notices = %+v", notices)
	}
}

func TestManager_LaterEntriesDoNotOvertakeRetry(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"), rev("b", "r1"))
	failA := true
	remote.downloadErr = func(id string) error {
		if id == "a" && failA {
			return errTransient
		}
		return nil
	}
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()

	_ = m.MarkAvailable(ctx, "a")
	_ = m.MarkUnavailable(ctx, "a")
	_ = m.MarkAvailable(ctx, "b")
	goOnline(t, m)

	q, _ := m.Queue()
	if len(q) != 2 || q[0].Action != ActionMarkAvailable || q[1].Action != ActionMarkUnavailable {
		t.Fatalf("queue = %+v; unavailable(a) must wait behind available(a)", q)
	}
	if _, err := m.Read("b"); err != nil {
		t.Errorf("unrelated entry should still apply: %v", err)
	}

	remote.mu.Lock()
	failA = false
	remote.mu.Unlock()
	if err := m.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if queueLen(t, m) != 0 {
		t.Error("queue should drain once the failure clears")
	}
	if ok, _ := m.IsAvailable("a"); ok {
		t.Error("final intent for a was unavailable")
	}
}

func TestManager_ServerRevisionWins(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()
	goOnline(t, m)
	if err := m.MarkAvailable(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	_ = m.SetOnline(ctx, false)
	// A queued action for the same id must not shield its stale metadata.
	if err := m.MarkAvailable(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	remote.setItems(rev("a", "r2"))
	goOnline(t, m)

	entry, err := m.store.GetCache("a")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Item.Revision != "r2" || entry.Revision != "r2" || entry.Stale() {
		t.Errorf("entry = %+v, want server revision r2", entry)
	}
	if blob, _ := m.Read("a"); string(blob) != "a@r2" {
		t.Errorf("blob = %q, want a@r2", blob)
	}
}

func TestManager_StaleBlobKeptWhenRefreshFails(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()
	goOnline(t, m)
	_ = m.MarkAvailable(ctx, "a")

	remote.setItems(rev("a", "r2"))
	remote.downloadErr = func(string) error { return errTransient }
	if err := m.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	entry, _ := m.store.GetCache("a")
	if entry.Item.Revision != "r2" || entry.Revision != "r1" || !entry.Stale() {
		t.Errorf("entry = %+v, want metadata r2 over stale r1 bytes", entry)
	}
}

func TestManager_RemovedItemsDroppedUnlessQueued(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"), rev("b", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()
	goOnline(t, m)
	_ = m.MarkAvailable(ctx, "a")
	_ = m.MarkAvailable(ctx, "b")

	_ = m.SetOnline(ctx, false)
	_ = m.MarkUnavailable(ctx, "b")
	remote.setItems()
	remote.mu.Lock()
	remote.blobs = map[string]string{}
	remote.mu.Unlock()

	if err := m.SetOnline(ctx, true); err != nil {
		t.Fatal(err)
	}
	if _, err := m.store.GetCache("a"); !errors.Is(err, ErrNotCached) {
		t.Errorf("a should be dropped after leaving the listing, got %v", err)
	}
	if _, err := m.store.GetCache("b"); !errors.Is(err, ErrNotCached) {
		t.Errorf("b should be dropped by its queued MarkUnavailable, got %v", err)
	}
}

func TestManager_EvictLRUSkipsPinned(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"), rev("b", "r1"), rev("c", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()
	goOnline(t, m)
	for _, id := range []string{"a", "b", "c"} {
		if err := m.MarkAvailable(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	// Access order: b, c, a. Each blob is 4 bytes.
	for _, id := range []string{"b", "c", "a"} {
		if _, err := m.Read(id); err != nil {
			t.Fatal(err)
		}
	}

	// Pin b with a queued action.
	_ = m.SetOnline(ctx, false)
	_ = m.Ack(ctx, "c9")
	_ = m.MarkAvailable(ctx, "b")

	m.quota = 7
	n, err := m.Evict()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("evicted = %d, want 2", n)
	}
	if _, err := m.store.GetCache("b"); err != nil {
		t.Errorf("pinned b evicted: %v", err)
	}
	if _, err := m.store.GetCache("c"); !errors.Is(err, ErrNotCached) {
		t.Error("least recently used unpinned entry c should be evicted")
	}
}

func TestManager_GoingOfflineCancelsReconcile(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"), rev("b", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()
	_ = m.MarkAvailable(ctx, "a")
	_ = m.MarkAvailable(ctx, "b")

	remote.gate = make(chan struct{})
	remote.started = make(chan string, 4)

	errCh := make(chan error, 1)
	go func() { errCh <- m.SetOnline(ctx, true) }()

	if id := <-remote.started; id != "a" {
		t.Fatalf("first replayed = %s, want a", id)
	}
	if err := m.SetOnline(ctx, false); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("SetOnline(true) = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reconciliation not cancelled")
	}

	q, _ := m.Queue()
	if len(q) != 2 || q[0].Attempts != 0 || q[1].Attempts != 0 {
		t.Errorf("queue after cancel = %+v; cancelled work must stay pending", q)
	}
	if m.Online() {
		t.Error("manager should be offline")
	}
}

func TestManager_ToggleWaitsBehindReconcile(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"), rev("b", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()
	_ = m.MarkAvailable(ctx, "a")

	remote.gate = make(chan struct{})
	remote.started = make(chan string, 4)
	go func() { _ = m.SetOnline(ctx, true) }()
	<-remote.started

	toggled := make(chan error, 1)
	go func() { toggled <- m.MarkAvailable(ctx, "b") }()

	select {
	case <-toggled:
		t.Fatal("toggle ran while reconciliation held the lock")
	case <-time.After(30 * time.Millisecond):
	}

	remote.gate <- struct{}{} // finish a
	<-remote.started          // b starts once reconciliation releases
	remote.gate <- struct{}{}
	if err := <-toggled; err != nil {
		t.Fatalf("MarkAvailable(b) = %v", err)
	}
	if _, err := m.Read("b"); err != nil {
		t.Errorf("b not cached: %v", err)
	}
}

func TestManager_ListingFailureStillReplays(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.listErr = errTransient
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()
	_ = m.Ack(ctx, "c7")

	if err := m.SetOnline(ctx, true); !errors.Is(err, errTransient) {
		t.Fatalf("SetOnline(true) = %v, want listing error", err)
	}
	if queueLen(t, m) != 0 || len(remote.acks) != 1 || remote.acks[0] != "c7" {
		t.Errorf("queued ack not replayed: acks = %v", remote.acks)
	}
}

func TestManager_ApplyChanges(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote(rev("a", "r1"), rev("b", "r1"))
	m := newTestManager(t, remote, Options{})
	ctx := context.Background()
	goOnline(t, m)
	_ = m.MarkAvailable(ctx, "a")
	_ = m.MarkAvailable(ctx, "b")

	remote.setItems(rev("a", "r2"))
	batch := models.ChangeBatch{RootID: "root", Cursor: "c2", Events: []models.ChangeEvent{
		{Type: models.ChangeModified, Item: rev("a", "r2"), PreviousRevision: "r1"},
		{Type: models.ChangeRemoved, Item: rev("b", "r1")},
		{Type: models.ChangeAdded, Item: rev("n", "r1")},
	}}
	if err := m.ApplyChanges(ctx, batch); err != nil {
		t.Fatal(err)
	}

	if blob, _ := m.Read("a"); string(blob) != "a@r2" {
		t.Errorf("a blob = %q, want a@r2", blob)
	}
	if _, err := m.store.GetCache("b"); !errors.Is(err, ErrNotCached) {
		t.Error("removed b should be dropped")
	}
	if need, _ := m.NeedsReconcile("c2"); need {
		t.Error("batch cursor not recorded")
	}
}

// Every queued action is eventually applied or discarded, whatever the mix
// of actions and failures. An entry held behind a retrying one for the same
// item starts its own attempts only after it, so the bound is
// entries * MaxAttempts passes.
func TestManager_ReconcileConverges(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, 7))
			var items []models.ContentItem
			for i := 0; i < 6; i++ {
				items = append(items, rev(fmt.Sprintf("i%d", i), "r1"))
			}
			remote := newFakeRemote(items...)
			// Called under remote.mu, so rng is never shared concurrently.
			remote.downloadErr = func(string) error {
				if rng.IntN(3) == 0 {
					return errTransient
				}
				return nil
			}
			m := newTestManager(t, remote, Options{MaxAttempts: 3})
			ctx := context.Background()

			for i := 0; i < 15; i++ {
				id := fmt.Sprintf("i%d", rng.IntN(8)) // i6, i7 do not exist
				switch rng.IntN(3) {
				case 0:
					_ = m.MarkAvailable(ctx, id)
				case 1:
					_ = m.MarkUnavailable(ctx, id)
				default:
					_ = m.Ack(ctx, fmt.Sprintf("c%d", i))
				}
			}

			_ = m.SetOnline(ctx, true)
			for pass := 1; pass < 15*3 && queueLen(t, m) > 0; pass++ {
				_ = m.Reconcile(ctx)
			}
			if q, _ := m.Queue(); len(q) != 0 {
				t.Fatalf("queue not drained: %+v", q)
			}
		})
	}
}
