// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package services

import (
	"context"
	"fmt"
)

// ContextHub matches *websocket.Hub's run loop.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService wraps the broadcast hub as a supervised service. The
// hub closes every client when its context ends.
type WebSocketHubService struct {
	hub  ContextHub
	name string
}

// NewWebSocketHubService creates a new WebSocket hub service wrapper.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer.
func (w *WebSocketHubService) String() string {
	return w.name
}

// StartStopSubscriber matches *websocket.BusSubscriber.
type StartStopSubscriber interface {
	Start(ctx context.Context) error
	Stop()
}

// BusBridgeService runs the subscriber that forwards event bus messages to
// the hub.
type BusBridgeService struct {
	subscriber StartStopSubscriber
	name       string
}

// NewBusBridgeService creates a new bridge service wrapper.
func NewBusBridgeService(subscriber StartStopSubscriber) *BusBridgeService {
	return &BusBridgeService{
		subscriber: subscriber,
		name:       "bus-bridge",
	}
}

// Serve implements suture.Service.
func (b *BusBridgeService) Serve(ctx context.Context) error {
	if err := b.subscriber.Start(ctx); err != nil {
		return fmt.Errorf("bus bridge start failed: %w", err)
	}
	<-ctx.Done()
	b.subscriber.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer.
func (b *BusBridgeService) String() string {
	return b.name
}
