package thumbcache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func touchFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("thumb"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestThumbnailCachePutGet(t *testing.T) {
	dir := t.TempDir()
	tc, err := NewThumbnailCache(4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	path := touchFile(t, dir, "a.jpg")
	tc.Put("hash-a", path)

	got, ok := tc.Get("hash-a")
	if !ok || got != path {
		t.Fatalf("expected to get back %s, got %s, ok=%v", path, got, ok)
	}
	if tc.Len() != 1 {
		t.Fatalf("expected length 1, got %d", tc.Len())
	}
}

func TestThumbnailCacheEvictionDeletesUnderlyingFile(t *testing.T) {
	dir := t.TempDir()
	tc, err := NewThumbnailCache(2)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	pathA := touchFile(t, dir, "a.jpg")
	pathB := touchFile(t, dir, "b.jpg")
	pathC := touchFile(t, dir, "c.jpg")

	tc.Put("a", pathA)
	tc.Put("b", pathB)
	tc.Put("c", pathC) // evicts "a", the least recently used

	if _, err := os.Stat(pathA); !os.IsNotExist(err) {
		t.Fatalf("expected the evicted entry's file to be removed from disk, stat err: %v", err)
	}
	if _, err := os.Stat(pathB); err != nil {
		t.Fatalf("expected the still-cached file to remain on disk: %v", err)
	}
	if _, err := os.Stat(pathC); err != nil {
		t.Fatalf("expected the still-cached file to remain on disk: %v", err)
	}
	if tc.Len() != 2 {
		t.Fatalf("expected capacity to cap length at 2, got %d", tc.Len())
	}
}

func TestThumbnailCacheRemoveEvictsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	tc, err := NewThumbnailCache(4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	path := touchFile(t, dir, "a.jpg")
	tc.Put("a", path)
	tc.Remove("a")

	if _, ok := tc.Get("a"); ok {
		t.Fatal("expected the removed entry to no longer be retrievable")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected Remove to delete the underlying file, stat err: %v", err)
	}
}

func TestNewThumbnailCacheDefaultsNonPositiveCapacity(t *testing.T) {
	tc, err := NewThumbnailCache(0)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if tc.lru.Len() != 0 {
		t.Fatal("expected a freshly built cache to start empty")
	}

	dir := t.TempDir()
	for i := 0; i <= DefaultCapacity; i++ {
		tc.Put(fmt.Sprintf("k%d", i), filepath.Join(dir, fmt.Sprintf("missing-%d.jpg", i)))
	}
	if tc.Len() != DefaultCapacity {
		t.Fatalf("expected a non-positive capacity to fall back to DefaultCapacity (%d), got %d", DefaultCapacity, tc.Len())
	}
}
