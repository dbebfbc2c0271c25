// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
)

// Topics carried by the bus.
const (
	TopicContentChanges = "content.changes"
	TopicSnapshotStale  = "content.snapshot_stale"
)

// Metadata keys set on every message.
const (
	MetadataRootID        = "root_id"
	MetadataCursor        = "cursor"
	MetadataCorrelationID = "correlation_id"
)

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// Config holds bus settings.
type Config struct {
	// BufferSize is the per-subscriber output buffer.
	BufferSize int64

	// Logger defaults to a watermill slog adapter over the application logger.
	Logger watermill.LoggerAdapter
}

// Bus carries change batches from the sync engines to the broadcast hub.
// It satisfies the sync engine's Publisher interface.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// New creates an in-process bus.
func New(cfg Config) *Bus {
	logger := cfg.Logger
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLogger())
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.BufferSize,
		}, logger),
		logger: logger,
	}
}

// PublishChanges publishes a change batch on TopicContentChanges.
func (b *Bus) PublishChanges(ctx context.Context, batch models.ChangeBatch) error {
	return b.publish(ctx, TopicContentChanges, batch.RootID, batch.Cursor, batch)
}

// PublishScanFailure publishes a failed scan on TopicSnapshotStale.
func (b *Bus) PublishScanFailure(ctx context.Context, failure models.ScanFailure) error {
	return b.publish(ctx, TopicSnapshotStale, failure.RootID, failure.Cursor, failure)
}

func (b *Bus) publish(ctx context.Context, topic, rootID, cursor string, payload interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.EventBusErrors.WithLabelValues(topic, "marshal").Inc()
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataRootID, rootID)
	msg.Metadata.Set(MetadataCursor, cursor)
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set(MetadataCorrelationID, cid)
	}

	if err := b.pubsub.Publish(topic, msg); err != nil {
		metrics.EventBusErrors.WithLabelValues(topic, "publish").Inc()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	metrics.EventBusPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe returns the message stream for topic. The stream closes when
// ctx is cancelled or the bus is closed. Each message must be acked before
// the next one is delivered.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down. Safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
