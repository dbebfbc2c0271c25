// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// Compile-time checks.
var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*SyncService)(nil)
	_ suture.Service = (*WebSocketHubService)(nil)
	_ suture.Service = (*BusBridgeService)(nil)
	_ suture.Service = (*RunnerService)(nil)
)

type mockHTTPServer struct {
	listenErr     error
	shutdownCount atomic.Int32
	started       chan struct{}
	stopCh        chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCount.Add(1)
	close(m.stopCh)
	return nil
}

func serveAndCancel(t *testing.T, svc suture.Service, ready func()) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	ready()
	cancel()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestHTTPServerService(t *testing.T) {
	t.Parallel()

	t.Run("graceful shutdown", func(t *testing.T) {
		t.Parallel()
		srv := newMockHTTPServer()
		svc := NewHTTPServerService(srv, 0)
		if svc.shutdownTimeout != 10*time.Second || svc.String() != "http-server" {
			t.Errorf("svc = %+v", svc)
		}
		err := serveAndCancel(t, svc, func() { <-srv.started })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
		if srv.shutdownCount.Load() != 1 {
			t.Errorf("Shutdown calls = %d", srv.shutdownCount.Load())
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		t.Parallel()
		srv := newMockHTTPServer()
		srv.listenErr = errors.New("address in use")
		err := NewHTTPServerService(srv, time.Second).Serve(context.Background())
		if err == nil || !errors.Is(err, srv.listenErr) {
			t.Errorf("Serve() error = %v", err)
		}
	})
}

type mockManager struct {
	startErr error
	started  chan struct{}
	stopped  atomic.Bool
}

func (m *mockManager) Start(context.Context) error {
	if m.started != nil {
		close(m.started)
	}
	return m.startErr
}

func (m *mockManager) Stop() error {
	m.stopped.Store(true)
	return nil
}

func TestSyncService(t *testing.T) {
	t.Parallel()

	m := &mockManager{started: make(chan struct{})}
	err := serveAndCancel(t, NewSyncService(m), func() { <-m.started })
	if !errors.Is(err, context.Canceled) || !m.stopped.Load() {
		t.Errorf("err = %v stopped = %v", err, m.stopped.Load())
	}

	failing := &mockManager{startErr: errors.New("no roots")}
	if err := NewSyncService(failing).Serve(context.Background()); err == nil {
		t.Error("start failure not reported")
	}
}

type mockHub struct{ running chan struct{} }

func (h *mockHub) RunWithContext(ctx context.Context) error {
	close(h.running)
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubService(t *testing.T) {
	t.Parallel()

	h := &mockHub{running: make(chan struct{})}
	svc := NewWebSocketHubService(h)
	if err := serveAndCancel(t, svc, func() { <-h.running }); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v", err)
	}
	if svc.String() != "websocket-hub" {
		t.Errorf("String() = %s", svc.String())
	}
}

type mockSubscriber struct {
	startErr error
	started  chan struct{}
	stopped  atomic.Bool
}

func (s *mockSubscriber) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	close(s.started)
	return nil
}

func (s *mockSubscriber) Stop() { s.stopped.Store(true) }

func TestBusBridgeService(t *testing.T) {
	t.Parallel()

	s := &mockSubscriber{started: make(chan struct{})}
	if err := serveAndCancel(t, NewBusBridgeService(s), func() { <-s.started }); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v", err)
	}
	if !s.stopped.Load() {
		t.Error("subscriber not stopped")
	}

	bad := &mockSubscriber{startErr: errors.New("bus closed")}
	if err := NewBusBridgeService(bad).Serve(context.Background()); !errors.Is(err, bad.startErr) {
		t.Errorf("Serve() error = %v", err)
	}
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRunnerService(t *testing.T) {
	t.Parallel()

	t.Run("cancel", func(t *testing.T) {
		t.Parallel()
		running := make(chan struct{})
		svc := NewRunnerService("listener", runnerFunc(func(ctx context.Context) error {
			close(running)
			<-ctx.Done()
			return ctx.Err()
		}))
		if err := serveAndCancel(t, svc, func() { <-running }); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	})

	t.Run("early return is a failure", func(t *testing.T) {
		t.Parallel()
		svc := NewRunnerService("listener", runnerFunc(func(context.Context) error { return nil }))
		if err := svc.Serve(context.Background()); err == nil {
			t.Error("early return not reported")
		}
	})
}
