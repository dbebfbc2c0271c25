// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/setlist/internal/index"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
)

// Trigger reasons.
const (
	ReasonPoll    = "poll"
	ReasonWebhook = "webhook"
	ReasonManual  = "manual"
	ReasonStartup = "startup"
)

// State is the engine's position in its scan cycle.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateDiffing
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDiffing:
		return "diffing"
	case StatePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}

// SnapshotBuilder produces a snapshot of a root. *index.Builder implements it.
type SnapshotBuilder interface {
	BuildSnapshot(ctx context.Context, rootID string) (*models.Snapshot, *index.ScanReport, error)
}

// Publisher fans change batches and scan failures out to live viewers.
type Publisher interface {
	PublishChanges(ctx context.Context, batch models.ChangeBatch) error
	PublishScanFailure(ctx context.Context, failure models.ScanFailure) error
}

// Status is a point-in-time view of one engine.
type Status struct {
	RootID        string                 `json:"root_id"`
	State         string                 `json:"state"`
	Cursor        string                 `json:"cursor,omitempty"`
	Items         int                    `json:"items"`
	Scans         uint64                 `json:"scans"`
	Failures      uint64                 `json:"failures"`
	LastScanAt    time.Time              `json:"last_scan_at,omitempty"`
	LastSuccessAt time.Time              `json:"last_success_at,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	Skipped       []index.SkippedSubtree `json:"skipped,omitempty"`
}

// Engine owns the snapshot of one root folder. It runs at most one scan at
// a time; triggers that arrive during a scan collapse into a single
// follow-up scan.
type Engine struct {
	rootID       string
	builder      SnapshotBuilder
	publisher    Publisher
	reporter     FailureReporter
	pollInterval time.Duration
	scanTimeout  time.Duration
	now          func() time.Time

	// pending holds at most one queued scan request.
	pending chan string
	state   atomic.Int32

	mu            sync.RWMutex
	current       *models.Snapshot
	lastReport    *index.ScanReport
	lastScanAt    time.Time
	lastSuccessAt time.Time
	lastErr       error
	scans         uint64
	failures      uint64
}

// NewEngine creates an engine for rootID. A zero pollInterval disables
// polling; a zero scanTimeout means no per-scan deadline.
func NewEngine(rootID string, builder SnapshotBuilder, publisher Publisher, pollInterval, scanTimeout time.Duration) *Engine {
	e := &Engine{
		rootID:       rootID,
		builder:      builder,
		publisher:    publisher,
		reporter:     LogReporter{},
		pollInterval: pollInterval,
		scanTimeout:  scanTimeout,
		now:          time.Now,
		pending:      make(chan string, 1),
	}
	metrics.SyncState.WithLabelValues(rootID).Set(float64(StateIdle))
	return e
}

// SetFailureReporter replaces the default log reporter.
func (e *Engine) SetFailureReporter(r FailureReporter) {
	if r != nil {
		e.reporter = r
	}
}

// RootID returns the watched folder id.
func (e *Engine) RootID() string { return e.rootID }

// State returns the current cycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Current returns the authoritative snapshot, nil before the first
// successful scan.
func (e *Engine) Current() *models.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Trigger requests a scan. It never blocks. It returns false when a scan was
// already queued and this request was folded into it.
func (e *Engine) Trigger(reason string) bool {
	select {
	case e.pending <- reason:
		metrics.RecordTrigger(reason, false)
		logging.Debug().Str("root_id", e.rootID).Str("reason", reason).Msg("Scan queued")
		return true
	default:
		metrics.RecordTrigger(reason, true)
		logging.Debug().Str("root_id", e.rootID).Str("reason", reason).Msg("Scan already queued, coalesced")
		return false
	}
}

// Run processes triggers until ctx is cancelled. Poll ticks are fed through
// Trigger so they coalesce with webhook and manual requests.
func (e *Engine) Run(ctx context.Context, scanOnStart bool) {
	var wg sync.WaitGroup
	if e.pollInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(e.pollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					e.Trigger(ReasonPoll)
				}
			}
		}()
	}
	defer wg.Wait()

	if scanOnStart {
		e.Trigger(ReasonStartup)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-e.pending:
			e.scan(ctx, reason)
		}
	}
}

// scan runs one Scanning → Diffing → Publishing → Idle cycle. A failed or
// cancelled build commits nothing.
func (e *Engine) scan(ctx context.Context, reason string) {
	defer e.setState(StateIdle)
	logger := logging.Ctx(ctx).With().Str("root_id", e.rootID).Str("reason", reason).Logger()

	e.setState(StateScanning)
	scanCtx := ctx
	if e.scanTimeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, e.scanTimeout)
		defer cancel()
	}

	start := e.now()
	snap, report, err := e.builder.BuildSnapshot(scanCtx, e.rootID)
	duration := e.now().Sub(start)

	e.mu.Lock()
	e.scans++
	e.lastScanAt = start
	e.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("Scan abandoned on shutdown")
			return
		}
		e.fail(ctx, err, report, duration)
		return
	}
	skipped := 0
	if report != nil {
		skipped = len(report.Skipped)
	}
	metrics.RecordScan(e.rootID, duration, snap.Len(), skipped, nil)

	e.setState(StateDiffing)
	prev := e.Current()
	snap = carryForwardSkipped(prev, snap, report)
	events := Diff(prev, snap)
	if prev == nil {
		logger.Info().Int("items", snap.Len()).Msg("First scan of root: all items reported as added")
	}

	e.mu.Lock()
	e.current = snap
	e.lastReport = report
	e.lastSuccessAt = snap.BuiltAt()
	e.lastErr = nil
	e.mu.Unlock()

	logger.Info().
		Int("items", snap.Len()).
		Int("events", len(events)).
		Int("skipped_subtrees", skipped).
		Dur("duration", duration).
		Str("cursor", snap.Cursor()).
		Msg("Scan complete")

	if len(events) == 0 {
		return
	}

	e.setState(StatePublishing)
	for _, ev := range events {
		metrics.ChangeEvents.WithLabelValues(string(ev.Type)).Inc()
	}
	batch := models.ChangeBatch{RootID: e.rootID, Cursor: snap.Cursor(), Events: events}
	if err := e.publisher.PublishChanges(ctx, batch); err != nil {
		// Viewers recover by comparing cursors on their next listing.
		logger.Error().Err(err).Int("events", len(events)).Msg("Failed to publish change batch")
	}
}

func (e *Engine) fail(ctx context.Context, err error, report *index.ScanReport, duration time.Duration) {
	metrics.RecordScan(e.rootID, duration, 0, 0, err)
	metrics.RecordScanFailure(e.rootID, failureReason(err))

	e.mu.Lock()
	e.failures++
	e.lastErr = err
	cursor := ""
	if e.current != nil {
		cursor = e.current.Cursor()
	}
	e.mu.Unlock()

	e.reporter.ReportScanFailure(e.rootID, err, report)

	failure := models.ScanFailure{RootID: e.rootID, Cursor: cursor, Reason: failureReason(err)}
	if perr := e.publisher.PublishScanFailure(ctx, failure); perr != nil {
		logging.Warn().Err(perr).Str("root_id", e.rootID).Msg("Failed to publish scan failure")
	}
}

// Status returns a copy of the engine's bookkeeping.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Status{
		RootID:        e.rootID,
		State:         e.State().String(),
		Scans:         e.scans,
		Failures:      e.failures,
		LastScanAt:    e.lastScanAt,
		LastSuccessAt: e.lastSuccessAt,
	}
	if e.current != nil {
		s.Cursor = e.current.Cursor()
		s.Items = e.current.Len()
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	if e.lastReport != nil && len(e.lastReport.Skipped) > 0 {
		s.Skipped = append([]index.SkippedSubtree(nil), e.lastReport.Skipped...)
	}
	return s
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	metrics.SyncState.WithLabelValues(e.rootID).Set(float64(s))
}

// carryForwardSkipped keeps previously known items that live under a
// skipped subtree, so a transient listing failure does not surface as
// Removed events. Items under a skipped folder only reappear as Removed once
// the folder lists successfully without them.
func carryForwardSkipped(prev, next *models.Snapshot, report *index.ScanReport) *models.Snapshot {
	if prev == nil || report == nil || len(report.Skipped) == 0 {
		return next
	}

	items := next.Items()
	carried := 0
	for _, old := range prev.Items() {
		if _, ok := next.Get(old.ID); ok {
			continue
		}
		for _, s := range report.Skipped {
			if old.Path == s.Path || strings.HasPrefix(old.Path, s.Path+"/") {
				items = append(items, old)
				carried++
				break
			}
		}
	}
	if carried == 0 {
		return next
	}
	logging.Debug().Str("root_id", next.RootID()).Int("items", carried).Msg("Kept items from skipped subtrees")
	return models.NewSnapshot(next.RootID(), items, next.BuiltAt())
}
