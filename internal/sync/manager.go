// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
)

// ErrUnknownRoot is returned for a root folder that is not watched.
var ErrUnknownRoot = errors.New("unknown root folder")

// CacheInvalidator drops cached storage listings. *storage.Client
// implements it.
type CacheInvalidator interface {
	InvalidateAll()
}

// Manager runs one Engine per watched root folder. Roots scan
// independently and in parallel.
type Manager struct {
	cfg         config.SyncConfig
	engines     map[string]*Engine
	order       []string
	invalidator CacheInvalidator

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates engines for roots. The first root is the default for
// listing requests that name none.
func NewManager(cfg config.SyncConfig, roots []string, builder SnapshotBuilder, publisher Publisher) *Manager {
	m := &Manager{
		cfg:     cfg,
		engines: make(map[string]*Engine, len(roots)),
	}
	for _, root := range roots {
		if _, dup := m.engines[root]; dup {
			continue
		}
		m.engines[root] = NewEngine(root, builder, publisher, cfg.PollInterval, cfg.ScanTimeout)
		m.order = append(m.order, root)
	}

	logging.Info().
		Strs("roots", m.order).
		Dur("poll_interval", cfg.PollInterval).
		Dur("scan_timeout", cfg.ScanTimeout).
		Bool("scan_on_startup", cfg.ScanOnStartup).
		Msg("Sync manager config loaded")
	return m
}

// SetFailureReporter installs r on every engine.
func (m *Manager) SetFailureReporter(r FailureReporter) {
	for _, e := range m.engines {
		e.SetFailureReporter(r)
	}
}

// SetCacheInvalidator sets the cache dropped before webhook-triggered scans,
// so a change notification is never masked by a cached listing.
func (m *Manager) SetCacheInvalidator(inv CacheInvalidator) {
	m.invalidator = inv
}

// Start launches every engine's loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("sync manager is already running")
	}
	logging.Info().Int("roots", len(m.order)).Msg("Starting sync manager...")

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, root := range m.order {
		e := m.engines[root]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			e.Run(runCtx, m.cfg.ScanOnStartup)
		}()
	}
	return nil
}

// Stop cancels in-flight scans and waits for every engine to exit.
// Abandoned scans commit nothing.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is not running")
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	cancel()
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

// Trigger requests a scan of rootID, or of every root when rootID is empty.
func (m *Manager) Trigger(rootID, reason string) error {
	if reason == ReasonWebhook && m.invalidator != nil {
		m.invalidator.InvalidateAll()
	}
	if rootID == "" {
		for _, root := range m.order {
			m.engines[root].Trigger(reason)
		}
		return nil
	}
	e, ok := m.engines[rootID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoot, rootID)
	}
	e.Trigger(reason)
	return nil
}

// Current returns the authoritative snapshot of rootID, or of the default
// root when rootID is empty. ok is false for an unknown root or before the
// first successful scan.
func (m *Manager) Current(rootID string) (*models.Snapshot, bool) {
	if rootID == "" {
		rootID = m.DefaultRoot()
	}
	e, ok := m.engines[rootID]
	if !ok {
		return nil, false
	}
	snap := e.Current()
	return snap, snap != nil
}

// Snapshots returns the current snapshot of every root that has one.
func (m *Manager) Snapshots() map[string]*models.Snapshot {
	out := make(map[string]*models.Snapshot, len(m.engines))
	for root, e := range m.engines {
		if snap := e.Current(); snap != nil {
			out[root] = snap
		}
	}
	return out
}

// Status reports every engine in configuration order.
func (m *Manager) Status() []Status {
	out := make([]Status, 0, len(m.order))
	for _, root := range m.order {
		out = append(out, m.engines[root].Status())
	}
	return out
}

// HasRoot reports whether rootID is watched.
func (m *Manager) HasRoot(rootID string) bool {
	_, ok := m.engines[rootID]
	return ok
}

// Roots returns the watched root ids in configuration order.
func (m *Manager) Roots() []string {
	return append([]string(nil), m.order...)
}

// DefaultRoot returns the first configured root.
func (m *Manager) DefaultRoot() string {
	if len(m.order) == 0 {
		return ""
	}
	return m.order[0]
}

// Ready reports whether every root has completed at least one scan.
func (m *Manager) Ready() bool {
	for _, e := range m.engines {
		if e.Current() == nil {
			return false
		}
	}
	return len(m.engines) > 0
}
