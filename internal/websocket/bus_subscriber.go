// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/setlist/internal/eventbus"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
)

// MessageSource is the subscribe side of the event bus.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// BusSubscriber forwards event bus messages to the hub.
type BusSubscriber struct {
	hub     *Hub
	source  MessageSource
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBusSubscriber creates a bridge from source to hub.
func NewBusSubscriber(hub *Hub, source MessageSource) *BusSubscriber {
	return &BusSubscriber{
		hub:    hub,
		source: source,
	}
}

// Start subscribes to the change and stale topics and begins forwarding.
func (s *BusSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	changes, err := s.source.Subscribe(subCtx, eventbus.TopicContentChanges)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", eventbus.TopicContentChanges, err)
	}
	stale, err := s.source.Subscribe(subCtx, eventbus.TopicSnapshotStale)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", eventbus.TopicSnapshotStale, err)
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go func(stopCh, doneCh chan struct{}) {
		defer close(doneCh)
		defer cancel()
		s.processMessages(subCtx, stopCh, changes, stale)
	}(s.stopCh, s.doneCh)

	logging.Info().Msg("event bus to websocket subscriber started")
	return nil
}

// Stop stops forwarding and waits for the in-flight message.
func (s *BusSubscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	logging.Info().Msg("event bus to websocket subscriber stopped")
}

func (s *BusSubscriber) processMessages(ctx context.Context, stopCh <-chan struct{}, changes, stale <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case msg, ok := <-changes:
			if !ok {
				return
			}
			s.handleChanges(ctx, msg)
		case msg, ok := <-stale:
			if !ok {
				return
			}
			s.handleStale(ctx, msg)
		}
	}
}

func (s *BusSubscriber) handleChanges(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var batch models.ChangeBatch
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		metrics.EventBusErrors.WithLabelValues(eventbus.TopicContentChanges, "decode").Inc()
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("failed to unmarshal change batch")
		return
	}
	if err := s.hub.PublishChanges(ctx, batch); err != nil {
		logging.Debug().Err(err).Str("root_id", batch.RootID).Msg("change batch not delivered")
	}
}

func (s *BusSubscriber) handleStale(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var failure models.ScanFailure
	if err := json.Unmarshal(msg.Payload, &failure); err != nil {
		metrics.EventBusErrors.WithLabelValues(eventbus.TopicSnapshotStale, "decode").Inc()
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("failed to unmarshal scan failure")
		return
	}
	if err := s.hub.PublishScanFailure(ctx, failure); err != nil {
		logging.Debug().Err(err).Str("root_id", failure.RootID).Msg("scan failure not delivered")
	}
}
