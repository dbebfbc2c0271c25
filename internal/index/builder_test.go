// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package index

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/storage"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// fakeTree is an in-memory folder tree.
type fakeTree struct {
	mu        sync.Mutex
	children  map[string][]storage.Entry
	entries   map[string]storage.Entry
	failures  map[string]error
	listCalls map[string]int
	onList    func(folderID string)
}

func newFakeTree() *fakeTree {
	return &fakeTree{
		children:  make(map[string][]storage.Entry),
		entries:   make(map[string]storage.Entry),
		failures:  make(map[string]error),
		listCalls: make(map[string]int),
	}
}

func (f *fakeTree) ListChildren(ctx context.Context, folderID string) ([]storage.Entry, error) {
	if f.onList != nil {
		f.onList(folderID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[folderID]++
	if err := f.failures[folderID]; err != nil {
		return nil, err
	}
	return append([]storage.Entry(nil), f.children[folderID]...), nil
}

func (f *fakeTree) GetEntryMetadata(_ context.Context, id string) (storage.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return storage.Entry{}, storage.ErrNotFound
	}
	return e, nil
}

func file(id, name, rev string) storage.Entry {
	return storage.Entry{ID: id, Name: name, Revision: rev, Size: 10}
}

func folder(id, name string) storage.Entry {
	return storage.Entry{ID: id, Name: name, IsFolder: true, MimeType: storage.MimeFolder}
}

func TestBuildSnapshot_NestedTree(t *testing.T) {
	t.Parallel()

	tree := newFakeTree()
	tree.children["root"] = []storage.Entry{
		file("f1", "Blue_Bb.pdf", "r1"),
		folder("d1", "Horns"),
		file("f2", "weird-file-name.pdf", "r1"),
	}
	tree.children["d1"] = []storage.Entry{
		folder("d2", "Deep"),
		file("f3", "Blue_Eb.pdf", "r1"),
	}
	tree.children["d2"] = []storage.Entry{
		file("f4", "Blue.mp3", "r1"),
		file("f5", "notes.zip", "r1"),
	}

	snap, report, err := NewBuilder(tree, 2).BuildSnapshot(context.Background(), "root")
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}

	wantOrder := []string{"f1", "f2", "f3", "f4", "f5"}
	gotOrder := snap.IDs()
	if len(gotOrder) != len(wantOrder) {
		t.Fatalf("IDs() = %v, want %v", gotOrder, wantOrder)
	}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("IDs() = %v, want %v", gotOrder, wantOrder)
		}
	}

	weird, _ := snap.Get("f2")
	if weird.Title != "weird-file-name.pdf" || weird.TranspositionKey != models.KeyUnknown || weird.ContentType != models.ContentChart {
		t.Errorf("unparseable item = %+v", weird)
	}
	eb, _ := snap.Get("f3")
	if eb.Path != "Horns" || eb.TranspositionKey != models.KeyEb {
		t.Errorf("nested item = %+v", eb)
	}
	audio, _ := snap.Get("f4")
	if audio.ContentType != models.ContentAudio || audio.Path != "Horns/Deep" {
		t.Errorf("audio item = %+v", audio)
	}
	zip, _ := snap.Get("f5")
	if zip.ContentType != models.ContentUnclassified {
		t.Errorf("zip item = %+v, want unclassified kept in snapshot", zip)
	}

	if report.Folders != 3 || report.Files != 5 || report.Unparseable != 1 || report.Unclassified != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Skipped) != 0 {
		t.Errorf("Skipped = %+v", report.Skipped)
	}
}

func TestBuildSnapshot_CyclesListedOnce(t *testing.T) {
	t.Parallel()

	tree := newFakeTree()
	tree.children["root"] = []storage.Entry{folder("a", "A"), folder("b", "B")}
	tree.children["a"] = []storage.Entry{folder("b", "B again"), file("f1", "X_Bb.pdf", "1")}
	tree.children["b"] = []storage.Entry{
		folder("a", "A again"),
		folder("root", "Root again"),
		{ID: "s1", Name: "Back to A", MimeType: storage.MimeShortcut, ShortcutTarget: "a", ShortcutTargetFolder: true},
	}

	snap, _, err := NewBuilder(tree, 4).BuildSnapshot(context.Background(), "root")
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}
	if snap.Len() != 1 {
		t.Errorf("Len() = %d, want 1", snap.Len())
	}
	for id, n := range tree.listCalls {
		if n != 1 {
			t.Errorf("folder %s listed %d times, want 1", id, n)
		}
	}
}

func TestBuildSnapshot_SubtreeFailureSkipped(t *testing.T) {
	t.Parallel()

	tree := newFakeTree()
	tree.children["root"] = []storage.Entry{folder("ok", "Good"), folder("bad", "Broken"), file("f1", "A_Bb.pdf", "1")}
	tree.children["ok"] = []storage.Entry{file("f2", "B_Eb.pdf", "1")}
	tree.failures["bad"] = storage.ErrRateLimitExceeded

	snap, report, err := NewBuilder(tree, 1).BuildSnapshot(context.Background(), "root")
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}
	if snap.Len() != 2 {
		t.Errorf("Len() = %d, want 2", snap.Len())
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("Skipped = %+v, want one entry", report.Skipped)
	}
	s := report.Skipped[0]
	if s.FolderID != "bad" || s.Path != "Broken" {
		t.Errorf("skipped = %+v", s)
	}
	if !errors.Is(s.Err, ErrSubtreeUnavailable) || !errors.Is(s.Err, storage.ErrRateLimitExceeded) {
		t.Errorf("skipped error = %v", s.Err)
	}
}

func TestBuildSnapshot_RootFailure(t *testing.T) {
	t.Parallel()

	tree := newFakeTree()
	tree.failures["root"] = storage.ErrAuthRequired

	snap, _, err := NewBuilder(tree, 1).BuildSnapshot(context.Background(), "root")
	if snap != nil {
		t.Error("expected no snapshot on root failure")
	}
	if !errors.Is(err, ErrScanFailed) || !errors.Is(err, storage.ErrAuthRequired) {
		t.Fatalf("error = %v, want ErrScanFailed wrapping ErrAuthRequired", err)
	}
}

func TestBuildSnapshot_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	tree := newFakeTree()
	tree.children["root"] = []storage.Entry{folder("d1", "D")}
	tree.children["d1"] = []storage.Entry{file("f1", "A_Bb.pdf", "1")}
	tree.onList = func(folderID string) {
		if folderID == "d1" {
			cancel()
		}
	}

	snap, _, err := NewBuilder(tree, 1).BuildSnapshot(ctx, "root")
	if snap != nil {
		t.Error("cancelled scan must not produce a snapshot")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrScanFailed) {
		t.Error("cancellation should not be reported as a scan failure")
	}
}

func TestBuildSnapshot_ShortcutsAndDuplicates(t *testing.T) {
	t.Parallel()

	tree := newFakeTree()
	tree.entries["target"] = file("target", "Green_Concert.pdf", "7")
	tree.children["root"] = []storage.Entry{
		file("target", "Green_Concert.pdf", "7"),
		{ID: "s1", Name: "Green shortcut", MimeType: storage.MimeShortcut, ShortcutTarget: "target"},
		{ID: "s2", Name: "Dangling", MimeType: storage.MimeShortcut, ShortcutTarget: "gone"},
		{ID: "s3", Name: "Other", MimeType: storage.MimeShortcut, ShortcutTarget: "other"},
	}
	tree.entries["other"] = file("other", "Red_Chords.txt", "1")

	snap, report, err := NewBuilder(tree, 1).BuildSnapshot(context.Background(), "root")
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (%v)", snap.Len(), snap.IDs())
	}
	other, ok := snap.Get("other")
	if !ok || other.TranspositionKey != models.KeyChords {
		t.Errorf("resolved shortcut item = %+v", other)
	}
	if report.Duplicates != 1 || report.UnresolvedShortcuts != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	item, parsed := Classify(storage.Entry{ID: "x", Name: "My_Song_Title_BassClef.PDF", Revision: "r", Size: 3}, "Low End")
	if !parsed {
		t.Error("expected parsed name")
	}
	if item.Title != "My_Song_Title" || item.TranspositionKey != models.KeyBassClef || item.ContentType != models.ContentChart {
		t.Errorf("item = %+v", item)
	}
	if item.Path != "Low End" || item.Name != "My_Song_Title_BassClef.PDF" || item.SizeBytes != 3 {
		t.Errorf("item = %+v", item)
	}
}
