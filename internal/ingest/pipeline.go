// Package ingest holds the content-addressed ingestion pipeline shared by
// the directory Watcher and the Cloud Sync Worker, so a file arriving
// from either direction is hashed, thumbnailed, metadata-extracted,
// perceptual-hashed, and indexed exactly the same way.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/mediautil"
	"github.com/ronimuliawan/Wanderer/internal/metadata"
	"github.com/ronimuliawan/Wanderer/internal/store"
	"github.com/ronimuliawan/Wanderer/internal/vault"
)

// TempSuffixes are skipped outright; files still being written by another
// process carry one of these.
var TempSuffixes = []string{".tmp", ".part", ".crdownload"}

// HashRetries/HashBackoff bound the retry loop for a file still being
// written when we try to hash it.
const (
	HashRetries = 5
	HashBackoff = 500 * time.Millisecond
)

// Pipeline runs the full ingest sequence against one collaborator set: the
// Store to dedupe/insert into and the Vault to encrypt thumbnails when
// armed. It is safe to share across the Watcher and the Cloud Sync Worker.
type Pipeline struct {
	Store        *store.Store
	Vault        *vault.Vault
	ThumbnailDir string
}

func New(s *store.Store, v *vault.Vault, thumbnailDir string) *Pipeline {
	return &Pipeline{Store: s, Vault: v, ThumbnailDir: thumbnailDir}
}

// IsTemp reports whether path carries one of TempSuffixes.
func IsTemp(path string) bool {
	for _, sfx := range TempSuffixes {
		if strings.HasSuffix(path, sfx) {
			return true
		}
	}
	return false
}

// Outcome reports what IngestFile actually did, so callers (the Watcher's
// "media-added" signal, the Cloud Sync Worker's re-registration path) can
// react appropriately.
type Outcome struct {
	MediaID        int64
	Created        bool // a new MediaItem row was inserted
	AlreadyIndexed bool // the hash already existed; Reenqueued tells whether it still needed upload
	Reenqueued     bool
}

// IngestFile runs the ingestion steps against a file already known to
// exist on disk: hash with retry, dedupe against the Store, detect
// MIME/kind, thumbnail (encrypting it if the vault demands it), extract
// metadata, compute a perceptual hash for images, and insert the row.
// enqueue is called with the file path when the caller should push it onto
// the upload queue (new media, or a previously-unuploaded duplicate path).
func (p *Pipeline) IngestFile(ctx context.Context, path string, enqueue func(path string) error) (Outcome, error) {
	hash, err := hashWithRetry(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("hash %s: %w", path, err)
	}

	if existing, err := p.Store.FindByHash(ctx, hash); err == nil {
		if existing.BlobID == "" {
			if enqueue != nil {
				if err := enqueue(existing.FilePath); err != nil {
					return Outcome{}, err
				}
			}
			return Outcome{MediaID: existing.ID, AlreadyIndexed: true, Reenqueued: true}, nil
		}
		return Outcome{MediaID: existing.ID, AlreadyIndexed: true}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("stat %s: %w", path, err)
	}

	mime := mediautil.DetectMIME(path, raw)
	thumbPath, width, height, perceptualHash, meta := p.deriveAssets(ctx, path, raw, mime, hash, info)

	id, err := p.Store.AddMedia(ctx, path, hash, thumbPath, time.Now(), meta, perceptualHash)
	if err != nil {
		return Outcome{}, fmt.Errorf("add media: %w", err)
	}
	_ = width
	_ = height

	if enqueue != nil {
		if err := enqueue(path); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{MediaID: id, Created: true}, nil
}

// deriveAssets derives the thumbnail, metadata, and perceptual hash.
// Failures in any one of these are non-fatal to the ingest -- the row is
// still inserted with whatever fields could be derived (the others left
// empty), rather than aborting the whole pipeline.
func (p *Pipeline) deriveAssets(ctx context.Context, path string, raw []byte, mime, hash string, info os.FileInfo) (thumbPath string, width, height int, perceptualHash string, meta store.Metadata) {
	meta.MimeType = mime
	meta.SizeBytes = info.Size()

	var img image.Image
	var thumbBytes []byte
	var err error

	switch {
	case mediautil.IsImage(mime):
		previewRaw := raw
		if mediautil.IsRaw(mime) {
			if preview, perr := mediautil.ExtractEmbeddedPreview(raw); perr == nil {
				previewRaw = preview
			}
		}
		thumbBytes, width, height, err = mediautil.ImageThumbnail(bytesReader(previewRaw), 512)
		if err == nil {
			img = decodeForHash(previewRaw)
		}
	case mediautil.IsVideo(mime):
		thumbBytes, err = mediautil.VideoThumbnail(ctx, path)
	}

	meta.Width = width
	meta.Height = height

	extracted := metadata.Extract(raw, info.ModTime(), changeTime(info))
	meta.DateTaken = &extracted.DateTaken
	meta.Latitude = extracted.Latitude
	meta.Longitude = extracted.Longitude
	meta.CameraMake = extracted.CameraMake
	meta.CameraModel = extracted.CameraModel

	if mediautil.IsImage(mime) && img != nil {
		perceptualHash = mediautil.PerceptualHash(img)
	}

	if err == nil && len(thumbBytes) > 0 {
		thumbPath = p.writeThumbnail(ctx, hash, thumbBytes)
	}
	return thumbPath, width, height, perceptualHash, meta
}

// writeThumbnail persists the derived thumbnail bytes under
// cache/thumbnails/<digest>.jpg, encrypting it in place when the vault is
// armed and unlocked, and discarding it rather than storing plaintext when
// the vault is armed but locked.
func (p *Pipeline) writeThumbnail(ctx context.Context, hash string, thumbBytes []byte) string {
	base := filepath.Join(p.ThumbnailDir, hash+".jpg")

	if p.Vault == nil || !p.Vault.IsEncrypted(ctx) {
		if err := os.WriteFile(base, thumbBytes, 0o644); err != nil {
			return ""
		}
		return base
	}

	encPath := base + ".wbenc"
	var wroteErr error
	keyErr := p.Vault.WithKey(ctx, func(key []byte) error {
		f, err := os.Create(encPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return vaultEncrypt(f, thumbBytes, key)
	})
	if keyErr != nil {
		// Locked (or any failure): thumbnail is dropped rather than stored
		// plaintext.
		_ = os.Remove(encPath)
		return ""
	}
	if wroteErr != nil {
		_ = os.Remove(encPath)
		return ""
	}
	return encPath
}

func hashWithRetry(path string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < HashRetries; attempt++ {
		f, err := os.Open(path)
		if err != nil {
			lastErr = err
			time.Sleep(HashBackoff)
			continue
		}
		h, err := mediautil.StreamDigest(f)
		f.Close()
		if err == nil {
			return h, nil
		}
		lastErr = err
		time.Sleep(HashBackoff)
	}
	if lastErr == nil {
		lastErr = errors.New("unknown hash failure")
	}
	return "", lastErr
}
