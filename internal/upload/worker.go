// Package upload implements the single serial Upload Worker loop:
// dequeue, encrypt on the fly when the vault is armed, stream to the
// blob store with progress, and interpret rate-limit signals.
package upload

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/blobstore"
	"github.com/ronimuliawan/Wanderer/internal/events"
	"github.com/ronimuliawan/Wanderer/internal/mediautil"
	"github.com/ronimuliawan/Wanderer/internal/store"
	"github.com/ronimuliawan/Wanderer/internal/vault"
	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// DefaultCooldown is the pause after a successful upload before the next
// dequeue.
const DefaultCooldown = 2 * time.Second

// LockedRetryInterval is how long the worker sleeps when the vault is
// encrypted but locked at the moment an item needs to upload.
const LockedRetryInterval = 5 * time.Second

// ConnectionRetryInterval is the sleep applied when the blob store is
// unreachable.
const ConnectionRetryInterval = 5 * time.Second

// Worker drains the upload queue strictly serially, one upload in flight
// at a time, FIFO by added_at.
type Worker struct {
	Store    *store.Store
	Vault    *vault.Vault
	Blob     blobstore.Store
	Sink     events.Sink
	TempDir  string
	Cooldown time.Duration
	Log      *log.Logger
}

func New(s *store.Store, v *vault.Vault, blob blobstore.Store, sink events.Sink, tempDir string, logger *log.Logger) *Worker {
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[upload] ", log.LstdFlags|log.LUTC)
	}
	return &Worker{Store: s, Vault: v, Blob: blob, Sink: sink, TempDir: tempDir, Cooldown: DefaultCooldown, Log: logger}
}

// Run loops until ctx is cancelled, checking the cancellation token first
// in every iteration.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		item, err := w.Store.NextPendingUpload(ctx)
		if err != nil {
			w.Log.Printf("next pending upload: %v", err)
			sleep(ctx, time.Second)
			continue
		}
		if item == nil {
			sleep(ctx, time.Second)
			continue
		}
		w.processOne(ctx, *item)
	}
}

func (w *Worker) processOne(ctx context.Context, item store.UploadQueueItem) {
	if err := w.Store.SetQueueStatus(ctx, item.ID, store.QueueUploading); err != nil {
		w.Log.Printf("mark uploading: %v", err)
		return
	}

	// Defensive rehash: if the Store already has this hash marked uploaded,
	// short-circuit to completed.
	hash, err := digestFile(item.FilePath)
	var mediaID int64
	if err == nil {
		if existing, ferr := w.Store.FindByHash(ctx, hash); ferr == nil {
			mediaID = existing.ID
			if existing.BlobID != "" {
				_ = w.Store.SetQueueStatus(ctx, item.ID, store.QueueCompleted)
				return
			}
		}
	}

	encrypted := w.Vault != nil && w.Vault.IsEncrypted(ctx)
	var uploadPath string
	var cleanup func()

	if encrypted {
		tmpPath, err := w.encryptToTemp(ctx, item.FilePath)
		if err != nil {
			if isLockedErr(err) {
				_ = w.Store.SetQueueStatus(ctx, item.ID, store.QueuePending)
				sleep(ctx, LockedRetryInterval)
				return
			}
			w.fail(ctx, item.ID, mediaID, err)
			return
		}
		uploadPath = tmpPath
		cleanup = func() { _ = os.Remove(tmpPath) }
	} else {
		uploadPath = item.FilePath
		cleanup = func() {}
	}
	defer cleanup()

	info, err := os.Stat(uploadPath)
	if err != nil {
		w.fail(ctx, item.ID, mediaID, err)
		return
	}
	f, err := os.Open(uploadPath)
	if err != nil {
		w.fail(ctx, item.ID, mediaID, err)
		return
	}
	defer f.Close()

	start := time.Now()
	lastEmit := int64(0)
	emitEvery := int64(float64(info.Size()) * 0.01)
	if emitEvery < 64*1024 {
		emitEvery = 64 * 1024
	}
	progress := func(sent, total int64) {
		if sent-lastEmit < emitEvery && sent != total {
			return
		}
		lastEmit = sent
		w.Sink.UploadProgress(mediaID, events.NewProgress(sent, total, time.Since(start).Seconds()))
	}

	blobID, err := w.Blob.UploadStream(ctx, f, info.Size(), filepath.Base(item.FilePath), progress)
	if err != nil {
		w.handleUploadError(ctx, item, mediaID, err)
		return
	}

	_ = w.Store.SetUploaded(ctx, item.FilePath, blobID, encrypted)
	if err := w.Store.SetQueueStatus(ctx, item.ID, store.QueueCompleted); err != nil {
		w.Log.Printf("mark completed: %v", err)
	}
	w.Sink.UploadCompleted(mediaID, blobID)
	sleep(ctx, w.cooldown())
}

func (w *Worker) cooldown() time.Duration {
	if w.Cooldown <= 0 {
		return DefaultCooldown
	}
	return w.Cooldown
}

func (w *Worker) handleUploadError(ctx context.Context, item store.UploadQueueItem, mediaID int64, err error) {
	if wait, ok := rateLimitWait(err); ok {
		w.Sink.UploadRateLimited(mediaID, wait)
		if serr := w.Store.SetQueueStatus(ctx, item.ID, store.QueueRateLimited); serr != nil {
			w.Log.Printf("mark rate limited: %v", serr)
		}
		sleep(ctx, time.Duration(wait)*time.Second)
		_ = w.Store.SetQueueStatus(ctx, item.ID, store.QueuePending)
		return
	}
	if isConnectionErr(err) {
		_ = w.Store.SetQueueStatus(ctx, item.ID, store.QueuePending)
		sleep(ctx, ConnectionRetryInterval)
		return
	}
	w.fail(ctx, item.ID, mediaID, err)
}

func (w *Worker) fail(ctx context.Context, queueID, mediaID int64, err error) {
	_ = w.Store.SetQueueFailed(ctx, queueID, err.Error())
	w.Sink.UploadFailed(mediaID, err.Error())
}

// encryptToTemp seals item's current bytes into a fresh container file
// under TempDir, returning its path; the caller deletes it unconditionally
// after the attempt.
func (w *Worker) encryptToTemp(ctx context.Context, filePath string) (string, error) {
	if err := os.MkdirAll(w.TempDir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(w.TempDir, "upload-*.wbenc")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	src, err := os.Open(filePath)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	defer src.Close()

	keyErr := w.Vault.WithKey(ctx, func(key []byte) error {
		return vault.EncryptStream(tmp, src, key, vault.DefaultChunkSize)
	})
	closeErr := tmp.Close()
	if keyErr != nil {
		os.Remove(tmpPath)
		return "", keyErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", closeErr
	}
	return tmpPath, nil
}

func isLockedErr(err error) bool {
	return verr.Is(err, verr.KindVaultLocked)
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return mediautil.StreamDigest(f)
}

func rateLimitWait(err error) (int, bool) {
	return blobstore.ParseRateLimitWait(err.Error())
}

func isConnectionErr(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, context.DeadlineExceeded)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
