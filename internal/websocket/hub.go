// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/view"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeHello          = "hello"
	MessageTypeContentChanges = "content_changes"
	MessageTypeSnapshotStale  = "snapshot_stale"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
)

// DefaultQueueSize bounds a connection's outbound queue when the config
// leaves it unset.
const DefaultQueueSize = 256

// ErrHubStopped is returned by publish calls once the hub has shut down.
var ErrHubStopped = errors.New("websocket hub stopped")

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HelloData is the first message on every connection. Cursor is empty until
// the root has been scanned once.
type HelloData struct {
	ViewerID string `json:"viewer_id"`
	RootID   string `json:"root_id"`
	Cursor   string `json:"cursor"`
}

// CursorSource reports the current snapshot of a root.
type CursorSource interface {
	Current(rootID string) (*models.Snapshot, bool)
}

type outbound struct {
	batch   *models.ChangeBatch
	failure *models.ScanFailure
}

// Hub owns the registry of connected viewers and fans change batches out to
// them. Registration, removal and broadcast are all serialized through Run,
// so a client's hello cursor is never newer than a batch it later receives.
type Hub struct {
	viewers    map[string]map[*Client]struct{}
	broadcast  chan outbound
	Register   chan *Client
	Unregister chan *Client
	stopped    chan struct{}
	stopOnce   sync.Once
	cursors    CursorSource
	cfg        config.HubConfig
	mu         sync.RWMutex
}

// NewHub creates a new Hub. cursors may be nil, in which case hello
// messages carry an empty cursor.
func NewHub(cfg config.HubConfig, cursors CursorSource) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Hub{
		viewers:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan outbound, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		cursors:    cursors,
		cfg:        cfg,
	}
}

// Config returns the hub's settings with defaults applied.
func (h *Hub) Config() config.HubConfig {
	return h.cfg
}

// RunWithContext runs the hub until ctx is cancelled, then closes every
// connection and returns ctx.Err().
//
// Lifecycle events are drained before broadcasts so the registry is always
// current when a batch is fanned out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.stopped) })

	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case out := <-h.broadcast:
			if out.batch != nil {
				h.deliverChanges(*out.batch)
			}
			if out.failure != nil {
				h.deliverStale(*out.failure)
			}
		}
	}
}

func (h *Hub) addClient(c *Client) {
	cursor := ""
	if h.cursors != nil {
		if snap, ok := h.cursors.Current(c.rootID); ok {
			cursor = snap.Cursor()
		}
	}
	// Queued before the client becomes visible to broadcasts.
	c.enqueue(Message{Type: MessageTypeHello, Data: HelloData{
		ViewerID: c.viewer.ViewerID,
		RootID:   c.rootID,
		Cursor:   cursor,
	}})

	h.mu.Lock()
	set, ok := h.viewers[c.viewer.ViewerID]
	if !ok {
		set = make(map[*Client]struct{})
		h.viewers[c.viewer.ViewerID] = set
	}
	set[c] = struct{}{}
	conns, viewers := h.countsLocked()
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(conns))
	metrics.WSViewers.Set(float64(viewers))
	logging.Info().
		Str("viewer_id", c.viewer.ViewerID).
		Str("root_id", c.rootID).
		Int("total_clients", conns).
		Msg("websocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	set, ok := h.viewers[c.viewer.ViewerID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.viewers, c.viewer.ViewerID)
	}
	conns, viewers := h.countsLocked()
	h.mu.Unlock()

	c.close()
	metrics.WSConnections.Set(float64(conns))
	metrics.WSViewers.Set(float64(viewers))
	logging.Info().
		Str("viewer_id", c.viewer.ViewerID).
		Int("total_clients", conns).
		Msg("websocket client disconnected")
}

// sortedClients returns clients of rootID ordered by id so delivery order is
// stable across runs.
func (h *Hub) sortedClients(rootID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var clients []*Client
	for _, set := range h.viewers {
		for c := range set {
			if c.rootID == rootID {
				clients = append(clients, c)
			}
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

func (h *Hub) deliverChanges(batch models.ChangeBatch) {
	for _, c := range h.sortedClients(batch.RootID) {
		filtered, ok := view.ResolveEvents(batch, c.viewer)
		if !ok {
			continue
		}
		c.enqueue(Message{Type: MessageTypeContentChanges, Data: filtered})
	}
}

func (h *Hub) deliverStale(failure models.ScanFailure) {
	for _, c := range h.sortedClients(failure.RootID) {
		c.enqueue(Message{Type: MessageTypeSnapshotStale, Data: failure})
	}
}

// PublishChanges queues batch for delivery. Each viewer receives only the
// events visible to them; viewers with nothing visible receive nothing.
func (h *Hub) PublishChanges(ctx context.Context, batch models.ChangeBatch) error {
	return h.enqueue(ctx, outbound{batch: &batch})
}

// PublishScanFailure tells every viewer of the root that their listing may be
// stale.
func (h *Hub) PublishScanFailure(ctx context.Context, failure models.ScanFailure) error {
	return h.enqueue(ctx, outbound{failure: &failure})
}

// enqueue fails once the hub has stopped, even while the buffered broadcast
// channel still has room.
func (h *Hub) enqueue(ctx context.Context, out outbound) error {
	select {
	case <-h.stopped:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- out:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, _ := h.countsLocked()
	return conns
}

// GetViewerCount returns the number of distinct connected viewers.
func (h *Hub) GetViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) countsLocked() (conns, viewers int) {
	for _, set := range h.viewers {
		conns += len(set)
	}
	return conns, len(h.viewers)
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	var clients []*Client
	for _, set := range h.viewers {
		for c := range set {
			clients = append(clients, c)
		}
	}
	h.viewers = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, c := range clients {
		c.close()
	}
	metrics.WSConnections.Set(0)
	metrics.WSViewers.Set(0)
}

// Attach registers c with the running hub and starts its pumps.
func (h *Hub) Attach(ctx context.Context, c *Client) error {
	select {
	case h.Register <- c:
		c.Start()
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
