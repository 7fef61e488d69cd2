package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ronimuliawan/Wanderer/internal/events"
	"github.com/ronimuliawan/Wanderer/internal/ingest"
	"github.com/ronimuliawan/Wanderer/internal/store"
)

type capturingSink struct {
	events.NopSink
	added []int64
}

func (c *capturingSink) MediaAdded(mediaID int64, _ string) { c.added = append(c.added, mediaID) }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "watcher_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScanExistingIngestsFilesAndSkipsTempSuffixes(t *testing.T) {
	ctx := context.Background()
	backupDir := t.TempDir()
	s := openTestStore(t)
	pipeline := ingest.New(s, nil, filepath.Join(backupDir, ".thumbs"))
	sink := &capturingSink{}

	if err := os.WriteFile(filepath.Join(backupDir, "keep.jpg"), []byte("real content"), 0o644); err != nil {
		t.Fatalf("write keep.jpg: %v", err)
	}
	if err := os.WriteFile(filepath.Join(backupDir, "partial.jpg.tmp"), []byte("in progress"), 0o644); err != nil {
		t.Fatalf("write partial.jpg.tmp: %v", err)
	}

	w := New(backupDir, pipeline, s, sink, nil)
	w.scanExisting(ctx)

	items, err := s.ListQueue(ctx)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(items) != 1 || items[0].FilePath != filepath.Join(backupDir, "keep.jpg") {
		t.Fatalf("expected only keep.jpg to be enqueued, got %+v", items)
	}
	if len(sink.added) != 1 {
		t.Fatalf("expected exactly one MediaAdded event, got %d", len(sink.added))
	}
}

func TestScanExistingIsIdempotentOnRescan(t *testing.T) {
	ctx := context.Background()
	backupDir := t.TempDir()
	s := openTestStore(t)
	pipeline := ingest.New(s, nil, filepath.Join(backupDir, ".thumbs"))
	sink := &capturingSink{}

	if err := os.WriteFile(filepath.Join(backupDir, "photo.jpg"), []byte("same bytes every time"), 0o644); err != nil {
		t.Fatalf("write photo.jpg: %v", err)
	}

	w := New(backupDir, pipeline, s, sink, nil)
	w.scanExisting(ctx)
	w.scanExisting(ctx)

	items, err := s.ListQueue(ctx)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected rescanning the same unchanged file not to enqueue it twice, got %d rows", len(items))
	}
	if len(sink.added) != 1 {
		t.Fatalf("expected exactly one MediaAdded event across both scans, got %d", len(sink.added))
	}
}
