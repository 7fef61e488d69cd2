package migration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/blobstore"
	"github.com/ronimuliawan/Wanderer/internal/store"
	"github.com/ronimuliawan/Wanderer/internal/vault"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "migration_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunEncryptsThumbnailAndReuploadsBlob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	v := vault.New(s)
	if _, err := v.InitializeEncrypted(ctx, "passphrase-one"); err != nil {
		t.Fatalf("initialize encrypted: %v", err)
	}

	blob := blobstore.NewMemStore()
	oldBlobID, err := blob.UploadStream(ctx, bytes.NewReader([]byte("plaintext original bytes")), 25, "photo.jpg", nil)
	if err != nil {
		t.Fatalf("seed old blob: %v", err)
	}

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(srcPath, []byte("plaintext original bytes"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	thumbPath := filepath.Join(dir, "photo_thumb.jpg")
	if err := os.WriteFile(thumbPath, []byte("plaintext thumbnail bytes"), 0o644); err != nil {
		t.Fatalf("write thumbnail: %v", err)
	}

	id, err := s.AddMedia(ctx, srcPath, "hash-1", thumbPath, time.Now(), store.Metadata{MimeType: "image/jpeg"}, "")
	if err != nil {
		t.Fatalf("add media: %v", err)
	}
	if err := s.SetUploaded(ctx, srcPath, oldBlobID, false); err != nil {
		t.Fatalf("set uploaded: %v", err)
	}

	tempDir := filepath.Join(dir, "migration-tmp")
	orch := New(s, v, blob, tempDir, nil)
	if err := orch.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	item, err := s.GetMedia(ctx, id)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	if !item.IsEncrypted {
		t.Fatal("expected the item to be marked encrypted after migration")
	}
	if item.BlobID == oldBlobID {
		t.Fatal("expected a fresh blob ID after re-upload")
	}
	if item.ThumbnailPath == thumbPath || !strings.HasSuffix(item.ThumbnailPath, ".wbenc") {
		t.Fatalf("expected the thumbnail path to be rewritten to a .wbenc container, got %s", item.ThumbnailPath)
	}
	if _, err := os.Stat(thumbPath); !os.IsNotExist(err) {
		t.Fatalf("expected the plaintext thumbnail to be removed, stat err: %v", err)
	}
	if _, err := os.Stat(item.ThumbnailPath); err != nil {
		t.Fatalf("expected the encrypted thumbnail to exist: %v", err)
	}

	if _, ok := s.MigrationPendingBlobID(ctx, id); ok {
		t.Fatal("expected the crash journal entry to be cleared after a successful run")
	}

	if _, err := blob.History(ctx, 0, 10); err != nil {
		t.Fatalf("history: %v", err)
	}
	// The old blob should have been deleted once the new one was recorded.
	tmpDest := filepath.Join(dir, "should-not-exist")
	if err := blob.Download(ctx, oldBlobID, tmpDest); err == nil {
		t.Fatal("expected the old blob to have been deleted")
	}

	status, err := s.LoadMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("load migration status: %v", err)
	}
	if status.Running {
		t.Fatal("expected the migration status to report not running once the pass completes")
	}
	if status.Succeeded != 1 || status.Failed != 0 {
		t.Fatalf("expected one succeeded and zero failed, got %+v", status)
	}
}

func TestRunIsANoOpWhenNoEligibleMediaExists(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	v := vault.New(s)
	if _, err := v.InitializeEncrypted(ctx, "passphrase-two"); err != nil {
		t.Fatalf("initialize encrypted: %v", err)
	}
	blob := blobstore.NewMemStore()
	orch := New(s, v, blob, filepath.Join(t.TempDir(), "migration-tmp"), nil)

	if err := orch.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	status, err := s.LoadMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("load migration status: %v", err)
	}
	if status.Total != 0 || status.Running {
		t.Fatalf("expected a clean no-op pass, got %+v", status)
	}
}
