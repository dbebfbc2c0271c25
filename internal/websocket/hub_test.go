// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/naming"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

var (
	trumpet = models.ViewerContext{ViewerID: "trumpet", TranspositionKey: models.KeyBb}
	altoSax = models.ViewerContext{ViewerID: "alto", TranspositionKey: models.KeyEb}
)

type staticCursors map[string]*models.Snapshot

func (s staticCursors) Current(rootID string) (*models.Snapshot, bool) {
	snap, ok := s[rootID]
	return snap, ok
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T, cfg config.HubConfig, cursors CursorSource) *Hub {
	t.Helper()
	hub := NewHub(cfg, cursors)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// register adds a connectionless client; its queue is inspected directly.
func register(hub *Hub, viewer models.ViewerContext, rootID string) *Client {
	c := NewClient(hub, nil, viewer, rootID)
	hub.Register <- c
	return c
}

// collect waits until n messages have been queued for c.
func collect(t *testing.T, c *Client, n int) []Message {
	t.Helper()
	var got []Message
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n {
		msgs, _ := c.drain()
		got = append(got, msgs...)
		if time.Now().After(deadline) {
			t.Fatalf("got %d messages, want %d: %+v", len(got), n, got)
		}
		time.Sleep(time.Millisecond)
	}
	return got
}

// settle makes sure the hub has delivered every broadcast queued before it.
// Broadcasts are FIFO, so once the probe's stale notice arrives the earlier
// ones have been fanned out.
func settle(t *testing.T, hub *Hub) {
	t.Helper()
	probe := register(hub, models.ViewerContext{ViewerID: "probe"}, "settle-root")
	collect(t, probe, 1)
	if err := hub.PublishScanFailure(context.Background(), models.ScanFailure{RootID: "settle-root"}); err != nil {
		t.Fatal(err)
	}
	collect(t, probe, 1)
	hub.Unregister <- probe
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func chart(id, filename string) models.ContentItem {
	p := naming.Parse(filename)
	return models.ContentItem{
		ID: id, Name: filename, Title: p.Title,
		TranspositionKey: p.TranspositionKey, ContentType: p.ContentType, Revision: "1",
	}
}

func TestNewHub_Defaults(t *testing.T) {
	t.Parallel()

	hub := NewHub(config.HubConfig{}, nil)
	if hub.Config().QueueSize != DefaultQueueSize {
		t.Errorf("QueueSize = %d, want %d", hub.Config().QueueSize, DefaultQueueSize)
	}
	if hub.GetClientCount() != 0 || hub.GetViewerCount() != 0 {
		t.Error("new hub should be empty")
	}
}

func TestHub_HelloCarriesCursor(t *testing.T) {
	t.Parallel()

	snap := models.NewSnapshot("root-hello", []models.ContentItem{chart("1", "Blue_Bb.pdf")}, time.Now())
	hub := startHub(t, config.HubConfig{}, staticCursors{"root-hello": snap})

	c := register(hub, trumpet, "root-hello")
	msgs := collect(t, c, 1)
	hello, ok := msgs[0].Data.(HelloData)
	if msgs[0].Type != MessageTypeHello || !ok {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if hello.Cursor != snap.Cursor() || hello.ViewerID != "trumpet" || hello.RootID != "root-hello" {
		t.Errorf("hello = %+v", hello)
	}

	unscanned := register(hub, trumpet, "root-unscanned")
	if h := collect(t, unscanned, 1)[0].Data.(HelloData); h.Cursor != "" {
		t.Errorf("unscanned root cursor = %q, want empty", h.Cursor)
	}
}

func TestHub_RegistryByViewer(t *testing.T) {
	t.Parallel()

	hub := startHub(t, config.HubConfig{}, nil)
	a := register(hub, trumpet, "root")
	b := register(hub, trumpet, "root")
	register(hub, altoSax, "root")

	eventually(t, func() bool { return hub.GetClientCount() == 3 && hub.GetViewerCount() == 2 })

	hub.Unregister <- a
	hub.Unregister <- b
	eventually(t, func() bool { return hub.GetClientCount() == 1 && hub.GetViewerCount() == 1 })
	if a.enqueue(Message{Type: MessageTypePong}) {
		t.Error("enqueue on an unregistered client should fail")
	}

	// Unregistering twice is harmless.
	hub.Unregister <- a
	eventually(t, func() bool { return hub.GetClientCount() == 1 })
}

func TestHub_PublishChangesFiltersPerViewer(t *testing.T) {
	t.Parallel()

	hub := startHub(t, config.HubConfig{}, nil)
	tc := register(hub, trumpet, "root")
	ac := register(hub, altoSax, "root")
	other := register(hub, trumpet, "other-root")
	collect(t, tc, 1)
	collect(t, ac, 1)
	collect(t, other, 1)

	batch := models.ChangeBatch{RootID: "root", Cursor: "c2", Events: []models.ChangeEvent{
		{Type: models.ChangeAdded, Item: chart("1", "Blue_Bb.pdf")},
		{Type: models.ChangeAdded, Item: chart("2", "weird-file-name.pdf")},
		{Type: models.ChangeAdded, Item: chart("3", "Blue_Eb.pdf")},
	}}
	if err := hub.PublishChanges(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		client *Client
		want   string
	}{
		{tc, "1,2"},
		{ac, "2,3"},
	} {
		msg := collect(t, tt.client, 1)[0]
		got, ok := msg.Data.(models.ChangeBatch)
		if msg.Type != MessageTypeContentChanges || !ok {
			t.Fatalf("message = %+v", msg)
		}
		if got.Cursor != "c2" || eventIDs(got) != tt.want {
			t.Errorf("viewer %s got %s (cursor %s), want %s", tt.client.viewer.ViewerID, eventIDs(got), got.Cursor, tt.want)
		}
	}

	settle(t, hub)
	if msgs, _ := other.drain(); len(msgs) != 0 {
		t.Errorf("client of another root received %+v", msgs)
	}
}

func TestHub_KeyChangeReachesBothViewers(t *testing.T) {
	t.Parallel()

	hub := startHub(t, config.HubConfig{}, nil)
	tc := register(hub, trumpet, "root")
	ac := register(hub, altoSax, "root")
	collect(t, tc, 1)
	collect(t, ac, 1)

	before := chart("7", "Blue_Bb.pdf")
	after := chart("7", "Blue_Eb.pdf")
	after.Revision = "r2"
	batch := models.ChangeBatch{RootID: "root", Cursor: "c4", Events: []models.ChangeEvent{
		{Type: models.ChangeModified, Item: after, PreviousRevision: before.Revision, Previous: &before},
	}}
	if err := hub.PublishChanges(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		client *Client
		want   models.ChangeType
	}{
		{tc, models.ChangeRemoved},
		{ac, models.ChangeAdded},
	} {
		msg := collect(t, tt.client, 1)[0]
		got, ok := msg.Data.(models.ChangeBatch)
		if !ok || len(got.Events) != 1 || got.Events[0].Type != tt.want {
			t.Errorf("viewer %s got %+v, want one %s event", tt.client.viewer.ViewerID, msg.Data, tt.want)
		}
	}
}

func TestHub_NothingVisibleSendsNothing(t *testing.T) {
	t.Parallel()

	hub := startHub(t, config.HubConfig{}, nil)
	tc := register(hub, trumpet, "root")
	collect(t, tc, 1)

	batch := models.ChangeBatch{RootID: "root", Cursor: "c3", Events: []models.ChangeEvent{
		{Type: models.ChangeRemoved, Item: chart("3", "Blue_Eb.pdf")},
	}}
	if err := hub.PublishChanges(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
	settle(t, hub)
	if msgs, _ := tc.drain(); len(msgs) != 0 {
		t.Errorf("trumpet received %+v", msgs)
	}
}

func TestHub_PublishScanFailure(t *testing.T) {
	t.Parallel()

	hub := startHub(t, config.HubConfig{}, nil)
	tc := register(hub, trumpet, "root")
	collect(t, tc, 1)

	failure := models.ScanFailure{RootID: "root", Cursor: "c1", Reason: "rate_limited"}
	if err := hub.PublishScanFailure(context.Background(), failure); err != nil {
		t.Fatal(err)
	}
	msg := collect(t, tc, 1)[0]
	if msg.Type != MessageTypeSnapshotStale || msg.Data.(models.ScanFailure).Reason != "rate_limited" {
		t.Errorf("message = %+v", msg)
	}
}

func TestClient_QueueDropsOldest(t *testing.T) {
	t.Parallel()

	hub := NewHub(config.HubConfig{QueueSize: 2}, nil)
	c := NewClient(hub, nil, trumpet, "root")

	before := testutil.ToFloat64(metrics.WSMessagesDropped)
	for _, typ := range []string{"m1", "m2", "m3"} {
		if !c.enqueue(Message{Type: typ}) {
			t.Fatalf("enqueue(%s) failed", typ)
		}
	}

	msgs, closed := c.drain()
	if closed || len(msgs) != 2 || msgs[0].Type != "m2" || msgs[1].Type != "m3" {
		t.Fatalf("drain() = %+v, %v", msgs, closed)
	}
	if c.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", c.Dropped())
	}
	if after := testutil.ToFloat64(metrics.WSMessagesDropped); after-before < 1 {
		t.Errorf("dropped counter did not advance: %v -> %v", before, after)
	}
}

func TestClient_CloseKeepsQueuedMessages(t *testing.T) {
	t.Parallel()

	hub := NewHub(config.HubConfig{}, nil)
	c := NewClient(hub, nil, trumpet, "root")
	c.enqueue(Message{Type: "last"})
	c.close()
	c.close()

	msgs, closed := c.drain()
	if !closed || len(msgs) != 1 {
		t.Errorf("drain() = %+v, %v", msgs, closed)
	}
	select {
	case <-c.notify:
	default:
		t.Error("close should wake the writer")
	}
}

func TestHub_RunWithContext(t *testing.T) {
	t.Parallel()

	t.Run("shuts down on context cancellation", func(t *testing.T) {
		t.Parallel()

		hub := NewHub(config.HubConfig{}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- hub.RunWithContext(ctx) }()

		c := register(hub, trumpet, "root")
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("RunWithContext did not return after context cancellation")
		}

		if _, closed := c.drain(); !closed {
			t.Error("client not closed on shutdown")
		}
		if hub.GetClientCount() != 0 {
			t.Errorf("clients after shutdown = %d", hub.GetClientCount())
		}
		// The broadcast buffer has room; every publish must still fail.
		for i := 0; i < 100; i++ {
			if err := hub.PublishChanges(context.Background(), models.ChangeBatch{}); !errors.Is(err, ErrHubStopped) {
				t.Fatalf("PublishChanges() #%d after stop = %v, want ErrHubStopped", i, err)
			}
			if err := hub.PublishScanFailure(context.Background(), models.ScanFailure{}); !errors.Is(err, ErrHubStopped) {
				t.Fatalf("PublishScanFailure() #%d after stop = %v, want ErrHubStopped", i, err)
			}
		}
		if err := hub.Attach(context.Background(), NewClient(hub, nil, trumpet, "root")); !errors.Is(err, ErrHubStopped) {
			t.Errorf("Attach() after stop = %v, want ErrHubStopped", err)
		}
	})

	t.Run("shuts down on context deadline", func(t *testing.T) {
		t.Parallel()

		hub := NewHub(config.HubConfig{}, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if err := hub.RunWithContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})
}

func TestGetShutdownReason(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel2()

	if got := getShutdownReason(cancelled); got != ShutdownReasonContextCanceled {
		t.Errorf("cancelled = %s", got)
	}
	if got := getShutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("expired = %s", got)
	}
}

func eventIDs(b models.ChangeBatch) string {
	s := ""
	for i, ev := range b.Events {
		if i > 0 {
			s += ","
		}
		s += ev.Item.ID
	}
	return s
}
