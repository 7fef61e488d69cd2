package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ronimuliawan/Wanderer/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ingest_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIsTempRecognizesInProgressDownloadSuffixes(t *testing.T) {
	cases := map[string]bool{
		"photo.jpg":              false,
		"photo.jpg.tmp":          true,
		"video.mov.part":         true,
		"archive.zip.crdownload": true,
	}
	for path, want := range cases {
		if got := IsTemp(path); got != want {
			t.Errorf("%s: expected IsTemp=%v, got %v", path, want, got)
		}
	}
}

func TestIngestFileInsertsNewMediaAndEnqueues(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	p := New(s, nil, filepath.Join(dir, "thumbs"))

	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("not actually media but still content-addressable"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var enqueued []string
	outcome, err := p.IngestFile(ctx, path, func(p string) error {
		enqueued = append(enqueued, p)
		return nil
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !outcome.Created || outcome.AlreadyIndexed {
		t.Fatalf("expected a freshly created outcome, got %+v", outcome)
	}
	if len(enqueued) != 1 || enqueued[0] != path {
		t.Fatalf("expected the new file to be enqueued for upload, got %v", enqueued)
	}

	item, err := s.GetMedia(ctx, outcome.MediaID)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	if item.FilePath != path {
		t.Fatalf("expected the stored file path to match, got %s", item.FilePath)
	}
}

func TestIngestFileReenqueuesDuplicateNotYetUploaded(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	p := New(s, nil, filepath.Join(dir, "thumbs"))

	original := filepath.Join(dir, "original.txt")
	if err := os.WriteFile(original, []byte("identical bytes"), 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}
	if _, err := p.IngestFile(ctx, original, nil); err != nil {
		t.Fatalf("ingest original: %v", err)
	}

	duplicate := filepath.Join(dir, "duplicate.txt")
	if err := os.WriteFile(duplicate, []byte("identical bytes"), 0o644); err != nil {
		t.Fatalf("write duplicate: %v", err)
	}

	var enqueued []string
	outcome, err := p.IngestFile(ctx, duplicate, func(p string) error {
		enqueued = append(enqueued, p)
		return nil
	})
	if err != nil {
		t.Fatalf("ingest duplicate: %v", err)
	}
	if !outcome.AlreadyIndexed || !outcome.Reenqueued || outcome.Created {
		t.Fatalf("expected an already-indexed, reenqueued outcome, got %+v", outcome)
	}
	// Reenqueues the *original* path, since that's what the Store still
	// knows as this hash's canonical file.
	if len(enqueued) != 1 || enqueued[0] != original {
		t.Fatalf("expected the original path to be reenqueued, got %v", enqueued)
	}
}

func TestIngestFileSkipsReenqueueOnceUploaded(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	p := New(s, nil, filepath.Join(dir, "thumbs"))

	original := filepath.Join(dir, "original.txt")
	if err := os.WriteFile(original, []byte("already uploaded bytes"), 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}
	outcome, err := p.IngestFile(ctx, original, nil)
	if err != nil {
		t.Fatalf("ingest original: %v", err)
	}
	if err := s.SetUploaded(ctx, original, "blob-1", false); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	_ = outcome

	duplicate := filepath.Join(dir, "duplicate.txt")
	if err := os.WriteFile(duplicate, []byte("already uploaded bytes"), 0o644); err != nil {
		t.Fatalf("write duplicate: %v", err)
	}

	called := false
	result, err := p.IngestFile(ctx, duplicate, func(string) error { called = true; return nil })
	if err != nil {
		t.Fatalf("ingest duplicate: %v", err)
	}
	if !result.AlreadyIndexed || result.Reenqueued {
		t.Fatalf("expected already-indexed without a reenqueue, got %+v", result)
	}
	if called {
		t.Fatal("expected enqueue not to be called once the hash is already uploaded")
	}
}
