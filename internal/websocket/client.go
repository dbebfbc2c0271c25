// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024
)

// clientIDCounter gives clients a stable sort order for broadcasts.
var clientIDCounter atomic.Uint64

// Client is one viewer connection. Its outbound queue is bounded: when the
// writer falls behind, the oldest queued message is dropped so the newest
// state always gets through.
type Client struct {
	id     uint64
	hub    *Hub
	conn   *websocket.Conn
	viewer models.ViewerContext
	rootID string

	mu       sync.Mutex
	queue    []Message
	maxQueue int
	closed   bool
	notify   chan struct{}
	dropped  uint64
}

// NewClient creates a client for viewer watching rootID.
func NewClient(hub *Hub, conn *websocket.Conn, viewer models.ViewerContext, rootID string) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		viewer:   viewer,
		rootID:   rootID,
		maxQueue: hub.cfg.QueueSize,
		notify:   make(chan struct{}, 1),
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// Viewer returns the viewer this connection belongs to.
func (c *Client) Viewer() models.ViewerContext {
	return c.viewer
}

// Dropped returns how many messages were discarded for this connection.
func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// enqueue appends msg, dropping the oldest message when full. It reports
// false once the client is closed.
func (c *Client) enqueue(msg Message) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if len(c.queue) >= c.maxQueue {
		c.queue = c.queue[1:]
		c.dropped++
		metrics.WSMessagesDropped.Inc()
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// drain takes everything queued. closed is true when the hub has released
// the client; remaining messages are still returned.
func (c *Client) drain() (msgs []Message, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, c.queue = c.queue, nil
	return msgs, c.closed
}

func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.stopped:
		}
		_ = c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(orDefault(cfg.MaxMessageSize, defaultMaxMessageSize))
	pongWait := orDefault(cfg.PongWait, defaultPongWait)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Warn().Err(err).Str("viewer_id", c.viewer.ViewerID).Msg("unexpected websocket close error")
			}
			return
		}
		metrics.WSMessagesReceived.Inc()

		if msg.Type == MessageTypePing {
			c.enqueue(Message{Type: MessageTypePong})
		}
	}
}

func (c *Client) writePump() {
	cfg := c.hub.cfg
	writeWait := orDefault(cfg.WriteWait, defaultWriteWait)
	pingPeriod := cfg.PingPeriod()
	if pingPeriod <= 0 {
		pingPeriod = (defaultPongWait * 9) / 10
	}

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.notify:
			msgs, closed := c.drain()
			for _, msg := range msgs {
				if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					logging.Error().Err(err).Msg("failed to set write deadline")
					return
				}
				if err := c.conn.WriteJSON(msg); err != nil {
					metrics.WSErrors.WithLabelValues("write").Inc()
					logging.Warn().Err(err).Str("viewer_id", c.viewer.ViewerID).Msg("failed to write websocket message")
					return
				}
				metrics.WSMessagesSent.Inc()
			}
			if closed {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func orDefault[T int64 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
