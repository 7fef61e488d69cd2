package cloudsync

import (
	"context"
	"errors"
	"log"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/blobstore"
	"github.com/ronimuliawan/Wanderer/internal/ingest"
	"github.com/ronimuliawan/Wanderer/internal/mediautil"
	"github.com/ronimuliawan/Wanderer/internal/store"
	"github.com/ronimuliawan/Wanderer/internal/vault"
)

// DefaultPollInterval is the cadence the worker polls the blob store's
// history at.
const DefaultPollInterval = 60 * time.Second

// HistoryPageSize bounds a single History call.
const HistoryPageSize = 100

// Worker polls the blob store's own history and reconciles unseen blobs
// into the local index. Cycles never overlap with
// themselves: Run only starts a new cycle after the previous
// one, including its sleep, completes.
type Worker struct {
	Store     *store.Store
	Vault     *vault.Vault
	Blob      blobstore.Store
	Pipeline  *ingest.Pipeline
	BackupDir string
	Poll      time.Duration
	Log       *log.Logger
}

func New(s *store.Store, v *vault.Vault, blob blobstore.Store, pipeline *ingest.Pipeline, backupDir string, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(log.Writer(), "[sync] ", log.LstdFlags|log.LUTC)
	}
	return &Worker{Store: s, Vault: v, Blob: blob, Pipeline: pipeline, BackupDir: backupDir, Poll: DefaultPollInterval, Log: logger}
}

func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if w.readyForCycle(ctx) {
			if err := w.runCycle(ctx); err != nil {
				w.Log.Printf("sync cycle: %v", err)
			}
		}
		if !sleep(ctx, w.pollInterval()) {
			return
		}
	}
}

func (w *Worker) pollInterval() time.Duration {
	if w.Poll <= 0 {
		return DefaultPollInterval
	}
	return w.Poll
}

// readyForCycle implements the cycle gate: credentialed and
// authorized, and not deferring because the vault is encrypted but locked.
func (w *Worker) readyForCycle(ctx context.Context) bool {
	if !w.Blob.IsCredentialed() || !w.Blob.IsAuthorized() {
		return false
	}
	if w.Vault != nil && w.Vault.IsEncrypted(ctx) {
		var locked bool
		err := w.Vault.WithKey(ctx, func([]byte) error { return nil })
		locked = err != nil
		if locked {
			return false
		}
	}
	return true
}

func (w *Worker) runCycle(ctx context.Context) error {
	refs, err := w.Blob.History(ctx, 0, HistoryPageSize)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ref.Filename == ManifestFilename {
			continue
		}
		if err := w.reconcileOne(ctx, ref); err != nil {
			w.Log.Printf("reconcile blob %s: %v", ref.ID, err)
		}
	}
	return nil
}

func (w *Worker) reconcileOne(ctx context.Context, ref blobstore.BlobRef) error {
	existing, err := w.Store.FindByBlobID(ctx, ref.ID)
	if err == nil && existing.IsCloudOnly {
		// The user explicitly evicted the local copy; don't re-pull it.
		return nil
	}

	filename := ref.Filename
	if filepath.Ext(filename) == "" {
		filename += extensionForMIME(ref.MimeType)
	}
	localPath := filepath.Join(w.BackupDir, filename)

	if _, statErr := os.Stat(localPath); errors.Is(statErr, os.ErrNotExist) {
		return w.downloadAndIngest(ctx, ref, localPath)
	}

	// File already present locally: make sure the Store records the cloud
	// blob id, or run the ingest pipeline against it if it was never
	// indexed at all.
	hash, err := digestFile(localPath)
	if err != nil {
		return err
	}
	if media, err := w.Store.FindByHash(ctx, hash); err == nil {
		return w.Store.SetCloudBlobID(ctx, media.ID, ref.ID)
	}
	_, err = w.Pipeline.IngestFile(ctx, localPath, nil)
	if err != nil {
		return err
	}
	return w.Store.SetUploaded(ctx, localPath, ref.ID, w.Vault != nil && w.Vault.IsEncrypted(ctx))
}

func (w *Worker) downloadAndIngest(ctx context.Context, ref blobstore.BlobRef, finalPath string) error {
	tmpDownload := finalPath + ".tmp"
	if err := w.Blob.Download(ctx, ref.ID, tmpDownload); err != nil {
		return err
	}

	encrypted := w.Vault != nil && w.Vault.IsEncrypted(ctx)
	sourcePath := tmpDownload
	if encrypted {
		decPath := finalPath + ".dec.tmp"
		if err := w.decryptFile(ctx, tmpDownload, decPath); err != nil {
			os.Remove(tmpDownload)
			os.Remove(decPath)
			return err
		}
		os.Remove(tmpDownload)
		sourcePath = decPath
	}

	if err := os.Rename(sourcePath, finalPath); err != nil {
		os.Remove(sourcePath)
		return err
	}

	if _, err := w.Pipeline.IngestFile(ctx, finalPath, nil); err != nil {
		return err
	}
	return w.Store.SetUploaded(ctx, finalPath, ref.ID, encrypted)
}

func (w *Worker) decryptFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	return w.Vault.WithKey(ctx, func(key []byte) error {
		return vault.DecryptIfNeeded(out, in, key)
	})
}

func extensionForMIME(mimeType string) string {
	// JPEG always gets .jpg (never .jpeg) to avoid alternate-suffix drift
	// across devices.
	if mimeType == "image/jpeg" {
		return ".jpg"
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return mediautil.StreamDigest(f)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
