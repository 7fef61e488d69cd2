// Package migration implements the encryption migration orchestrator:
// once the vault transitions from unencrypted to encrypted, every
// previously plaintext thumbnail is rewritten as a .wbenc container and
// every previously plaintext cloud blob is re-uploaded encrypted under a
// fresh blob ID, with the old blob deleted only after the new one is
// durably recorded. It follows the same encrypt-then-upload-then-record
// sequencing as the Upload Worker, generalized into a batch run backed
// by a crash journal instead of a queue row.
package migration

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ronimuliawan/Wanderer/internal/blobstore"
	"github.com/ronimuliawan/Wanderer/internal/store"
	"github.com/ronimuliawan/Wanderer/internal/vault"
	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// Orchestrator runs one encryption-migration pass over every eligible
// media item. It is not a long-running worker: a caller (cmd/wandererd,
// or the vault-initialization flow) invokes Run once after the vault is
// armed and unlocked.
type Orchestrator struct {
	Store   *store.Store
	Vault   *vault.Vault
	Blob    blobstore.Store
	TempDir string
	Log     *log.Logger
}

func New(s *store.Store, v *vault.Vault, blob blobstore.Store, tempDir string, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[migration] ", log.LstdFlags|log.LUTC)
	}
	return &Orchestrator{Store: s, Vault: v, Blob: blob, TempDir: tempDir, Log: logger}
}

// Run migrates every non-deleted, uploaded, not-yet-encrypted item. It
// accumulates per-item failures in MigrationStatus.failed and keeps going;
// only a lost master key (the vault reports it is locked), a failure
// creating the run's temp directory, or a failure listing the candidates
// aborts the whole pass.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := os.MkdirAll(o.TempDir, 0o755); err != nil {
		return fmt.Errorf("create migration temp dir: %w", err)
	}

	items, err := o.Store.ListAllEncryptableMedia(ctx)
	if err != nil {
		return fmt.Errorf("list encryptable media: %w", err)
	}

	status := store.MigrationStatus{Running: true, Total: len(items)}
	o.save(ctx, status)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := o.migrateOne(ctx, item); err != nil {
			status.Failed++
			status.LastError = err.Error()
			o.Log.Printf("migrate media=%d: %v", item.ID, err)
			if verr.Is(err, verr.KindVaultLocked) {
				status.Processed++
				status.Running = false
				o.save(ctx, status)
				return fmt.Errorf("migration aborted: %w", err)
			}
		} else {
			status.Succeeded++
		}
		status.Processed++
		o.save(ctx, status)
	}

	status.Running = false
	o.save(ctx, status)
	return nil
}

func (o *Orchestrator) save(ctx context.Context, status store.MigrationStatus) {
	if err := o.Store.SaveMigrationStatus(ctx, status); err != nil {
		o.Log.Printf("save migration status: %v", err)
	}
}

// migrateOne migrates one item's thumbnail and cloud blob. The cloud blob
// step is resumable: if a prior run already recorded a new blob ID in the
// crash journal before being interrupted, this re-enters at the finalize
// step rather than re-uploading, so a crash-and-restart in the middle
// cannot produce a duplicate upload.
func (o *Orchestrator) migrateOne(ctx context.Context, item store.MediaItem) error {
	o.migrateThumbnail(ctx, item)

	if pending, ok := o.Store.MigrationPendingBlobID(ctx, item.ID); ok {
		return o.finalize(ctx, item, pending)
	}

	newBlobID, err := o.reuploadEncrypted(ctx, item)
	if err != nil {
		return err
	}
	if err := o.Store.MarkMigrationPending(ctx, item.ID, newBlobID); err != nil {
		return fmt.Errorf("journal pending reupload: %w", err)
	}
	return o.finalize(ctx, item, newBlobID)
}

// migrateThumbnail rewrites a plaintext thumbnail as a .wbenc container
// and removes the plaintext copy, best-effort: a failure here does not
// fail the item's migration, since the cloud blob is the authoritative
// encrypted copy and the thumbnail can be regenerated.
func (o *Orchestrator) migrateThumbnail(ctx context.Context, item store.MediaItem) {
	path := item.ThumbnailPath
	if path == "" || strings.HasSuffix(path, ".wbenc") {
		return
	}
	plain, err := os.ReadFile(path)
	if err != nil {
		return
	}
	encPath := path + ".wbenc"
	f, err := os.Create(encPath)
	if err != nil {
		return
	}
	keyErr := o.Vault.WithKey(ctx, func(key []byte) error {
		return vault.EncryptStream(f, bytes.NewReader(plain), key, vault.DefaultChunkSize)
	})
	closeErr := f.Close()
	if keyErr != nil || closeErr != nil {
		_ = os.Remove(encPath)
		return
	}
	if err := o.Store.SetThumbnailPath(ctx, item.ID, encPath); err != nil {
		_ = os.Remove(encPath)
		return
	}
	_ = os.Remove(path)
}

// reuploadEncrypted downloads the item's local bytes (or the existing
// cloud blob if the local copy has been evicted), seals them into a fresh
// WBENC1 container, and uploads that container, returning the new blob ID.
func (o *Orchestrator) reuploadEncrypted(ctx context.Context, item store.MediaItem) (string, error) {
	plainPath := item.FilePath
	if item.IsCloudOnly {
		tmp, err := os.CreateTemp(o.TempDir, "migrate-src-*")
		if err != nil {
			return "", err
		}
		tmp.Close()
		if err := o.Blob.Download(ctx, item.BlobID, tmp.Name()); err != nil {
			os.Remove(tmp.Name())
			return "", fmt.Errorf("download existing blob: %w", err)
		}
		defer os.Remove(tmp.Name())
		plainPath = tmp.Name()
	}

	src, err := os.Open(plainPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return "", err
	}

	encFile, err := os.CreateTemp(o.TempDir, "migrate-enc-*.wbenc")
	if err != nil {
		return "", err
	}
	encPath := encFile.Name()
	defer os.Remove(encPath)

	keyErr := o.Vault.WithKey(ctx, func(key []byte) error {
		return vault.EncryptStream(encFile, src, key, vault.DefaultChunkSize)
	})
	closeErr := encFile.Close()
	if keyErr != nil {
		return "", fmt.Errorf("encrypt: %w", keyErr)
	}
	if closeErr != nil {
		return "", closeErr
	}

	encInfo, err := os.Stat(encPath)
	if err != nil {
		return "", err
	}
	reopened, err := os.Open(encPath)
	if err != nil {
		return "", err
	}
	defer reopened.Close()

	_ = info.Size()
	newBlobID, err := o.Blob.UploadStream(ctx, reopened, encInfo.Size(), filepath.Base(item.FilePath), nil)
	if err != nil {
		return "", fmt.Errorf("upload encrypted blob: %w", err)
	}
	return newBlobID, nil
}

// finalize records the new blob ID and encrypted flag, deletes the old
// blob, and clears the crash journal -- the only point after which this
// item will never be revisited by a later run.
func (o *Orchestrator) finalize(ctx context.Context, item store.MediaItem, newBlobID string) error {
	oldBlobID := item.BlobID
	if err := o.Store.SetUploaded(ctx, item.FilePath, newBlobID, true); err != nil {
		return fmt.Errorf("record new blob: %w", err)
	}
	if oldBlobID != "" && oldBlobID != newBlobID {
		if _, err := o.Blob.Delete(ctx, []string{oldBlobID}); err != nil {
			o.Log.Printf("delete old blob %s for media=%d: %v", oldBlobID, item.ID, err)
		}
	}
	return o.Store.ClearMigrationPending(ctx, item.ID)
}
