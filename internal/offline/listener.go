// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
)

// Wire message types, mirrored from the server hub.
const (
	msgHello          = "hello"
	msgContentChanges = "content_changes"
	msgSnapshotStale  = "snapshot_stale"
)

const (
	listenerPongWait  = 75 * time.Second
	listenerWriteWait = 10 * time.Second
	maxReconnectDelay = 30 * time.Second

	// listenerQueueSize bounds messages waiting for the manager. When it
	// fills, pending batches are dropped and a full reconciliation follows.
	listenerQueueSize = 64
)

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type helloData struct {
	RootID string `json:"root_id"`
	Cursor string `json:"cursor"`
}

// liveJob is one message handed from the read loop to the manager worker.
type liveJob struct {
	hello *helloData
	batch *models.ChangeBatch
}

// LiveListener keeps a Manager connected to the server's live channel. A
// successful connection flips the manager online (and reconciles); losing
// it flips the manager offline. Manager work runs beside the read loop, so
// pings are answered during a long reconciliation.
type LiveListener struct {
	manager *Manager
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	delay   time.Duration
}

// NewLiveListener creates a listener for the server at baseURL.
func NewLiveListener(manager *Manager, baseURL, rootID string, viewer models.ViewerContext, reconnectDelay time.Duration) (*LiveListener, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/api/v1/ws")
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if rootID != "" {
		q := u.Query()
		q.Set("root", rootID)
		u.RawQuery = q.Encode()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}

	header := http.Header{}
	header.Set(HeaderViewerID, viewer.ViewerID)
	header.Set(HeaderTranspositionKey, string(viewer.TranspositionKey))
	header.Set("Origin", strings.TrimRight(baseURL, "/"))

	return &LiveListener{
		manager: manager,
		url:     u.String(),
		header:  header,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		delay:   reconnectDelay,
	}, nil
}

// Run connects and reconnects until ctx is cancelled.
func (l *LiveListener) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.delay
	b.MaxInterval = maxReconnectDelay
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		connected, err := l.session(ctx)
		_ = l.manager.SetOnline(ctx, false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		logging.Warn().Err(err).Dur("retry_in", wait).Msg("live channel lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection. connected reports whether the hello arrived.
// Ending the session cancels any manager work it started.
func (l *LiveListener) session(ctx context.Context) (connected bool, err error) {
	conn, resp, err := l.dialer.DialContext(ctx, l.url, l.header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial live channel: %s: %w", resp.Status, err)
		}
		return false, fmt.Errorf("dial live channel: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	wctx, cancel := context.WithCancel(ctx)
	jobs := make(chan liveJob, listenerQueueSize)
	var (
		overflow atomic.Bool
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.work(wctx, jobs, &overflow)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	submit := func(j liveJob) {
		select {
		case jobs <- j:
		default:
			if !overflow.Swap(true) {
				logging.Warn().Int("queue_size", listenerQueueSize).Msg("live updates backed up, will reconcile")
			}
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(listenerPongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(listenerPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(listenerWriteWait))
	})

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return connected, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(listenerPongWait))

		switch msg.Type {
		case msgHello:
			var hello helloData
			if err := json.Unmarshal(msg.Data, &hello); err != nil {
				return connected, fmt.Errorf("decode hello: %w", err)
			}
			connected = true
			submit(liveJob{hello: &hello})

		case msgContentChanges:
			var batch models.ChangeBatch
			if err := json.Unmarshal(msg.Data, &batch); err != nil {
				logging.Warn().Err(err).Msg("failed to decode change batch")
				continue
			}
			submit(liveJob{batch: &batch})

		case msgSnapshotStale:
			logging.Info().RawJSON("failure", msg.Data).Msg("server listing may be stale")
		}
	}
}

// work applies jobs in arrival order until ctx ends. After an overflow it
// reconciles against the full listing.
func (l *LiveListener) work(ctx context.Context, jobs <-chan liveJob, overflow *atomic.Bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-jobs:
			switch {
			case j.hello != nil:
				l.onHello(ctx, j.hello.Cursor, false)
			case j.batch != nil:
				l.onChanges(ctx, *j.batch)
			}
		}
		if overflow.Swap(false) {
			l.onHello(ctx, "", true)
		}
	}
}

// onHello brings the manager online, or reconciles when it already is and
// the server cursor differs from ours. force reconciles regardless.
func (l *LiveListener) onHello(ctx context.Context, cursor string, force bool) {
	if !l.manager.Online() {
		if err := l.manager.SetOnline(ctx, true); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn().Err(err).Msg("reconciliation after reconnect incomplete")
		}
		return
	}
	if !force {
		need, err := l.manager.NeedsReconcile(cursor)
		if err != nil || !need {
			return
		}
	}
	if err := l.manager.Reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn().Err(err).Msg("cursor mismatch reconciliation incomplete")
	}
}

func (l *LiveListener) onChanges(ctx context.Context, batch models.ChangeBatch) {
	if err := l.manager.ApplyChanges(ctx, batch); err != nil {
		logging.Warn().Err(err).Str("cursor", batch.Cursor).Msg("failed to apply change batch")
		return
	}
	if err := l.manager.Ack(ctx, batch.Cursor); err != nil {
		logging.Debug().Err(err).Str("cursor", batch.Cursor).Msg("ack not delivered")
	}
}
