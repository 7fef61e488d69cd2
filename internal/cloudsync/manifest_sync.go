package cloudsync

import (
	"bytes"
	"context"
	"os"

	"github.com/ronimuliawan/Wanderer/internal/blobstore"
)

// PullManifest finds the most recent ManifestFilename entry in the blob
// store's history and parses it, returning (Manifest{}, false, nil) if no
// manifest has ever been pushed.
func PullManifest(ctx context.Context, blob blobstore.Store) (Manifest, bool, error) {
	refs, err := blob.History(ctx, 0, HistoryPageSize)
	if err != nil {
		return Manifest{}, false, err
	}
	var latest *blobstore.BlobRef
	for i := range refs {
		if refs[i].Filename == ManifestFilename {
			if latest == nil || refs[i].UploadedAt.After(latest.UploadedAt) {
				latest = &refs[i]
			}
		}
	}
	if latest == nil {
		return Manifest{}, false, nil
	}

	tmp, err := os.CreateTemp("", "wanderer-manifest-*.json")
	if err != nil {
		return Manifest{}, false, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := blob.Download(ctx, latest.ID, tmpPath); err != nil {
		return Manifest{}, false, err
	}
	raw, err := os.ReadFile(tmpPath)
	if err != nil {
		return Manifest{}, false, err
	}
	m, err := Parse(raw)
	if err != nil {
		return Manifest{}, false, err
	}
	return m, true, nil
}

// PushManifest uploads m as the canonical manifest blob.
func PushManifest(ctx context.Context, blob blobstore.Store, m Manifest) (string, error) {
	raw, err := m.Marshal()
	if err != nil {
		return "", err
	}
	return blob.UploadStream(ctx, bytes.NewReader(raw), int64(len(raw)), ManifestFilename, noopProgress)
}

func noopProgress(int64, int64) {}
