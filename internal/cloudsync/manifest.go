// Package cloudsync implements the Sync Manifest and the
// Cloud Sync Worker that exchanges it and reconciles blobs pushed from
// sibling devices.
package cloudsync

import (
	"encoding/json"
	"time"
)

// ManifestFilename is the well-known object name exchanged via the blob
// store.
const ManifestFilename = "wanderer_sync_manifest.json"

// ManifestVersion is the only schema version this implementation writes or
// reads.
const ManifestVersion = 1

// Manifest is the JSON metadata document two devices exchange to merge
// favorite/rating/album state without re-uploading bytes.
type Manifest struct {
	Version     int                   `json:"version"`
	LastUpdated string                `json:"last_updated"`
	DeviceID    string                `json:"device_id"`
	Media       map[string]MediaEntry `json:"media"`
	Albums      map[string]AlbumEntry `json:"albums"`
}

// MediaEntry is keyed by content digest in Manifest.Media.
type MediaEntry struct {
	IsFavorite   bool     `json:"is_favorite"`
	Rating       int      `json:"rating"`
	Albums       []string `json:"albums"`
	LastModified string   `json:"last_modified"`
}

// AlbumEntry is keyed by normalized (trimmed, lowercased) album name in
// Manifest.Albums.
type AlbumEntry struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// New builds an empty manifest for deviceID, stamped with the current
// time.
func New(deviceID string) Manifest {
	return Manifest{
		Version:     ManifestVersion,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		DeviceID:    deviceID,
		Media:       map[string]MediaEntry{},
		Albums:      map[string]AlbumEntry{},
	}
}

// Marshal serializes stably (sorted map keys, Go's encoding/json default
// for maps) for round-trip exchange via the blob store.
func (m Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Parse is tolerant of extra fields:
// json.Unmarshal already ignores unknown keys by default.
func Parse(raw []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, err
	}
	if m.Media == nil {
		m.Media = map[string]MediaEntry{}
	}
	if m.Albums == nil {
		m.Albums = map[string]AlbumEntry{}
	}
	return m, nil
}

// Merge folds remote into local with per-key last-write-wins on
// media.last_modified; albums present remotely but absent locally are
// created. local is not mutated; the merged
// result is returned.
func Merge(local, remote Manifest) Manifest {
	out := Manifest{
		Version:     local.Version,
		LastUpdated: local.LastUpdated,
		DeviceID:    local.DeviceID,
		Media:       map[string]MediaEntry{},
		Albums:      map[string]AlbumEntry{},
	}
	if remote.LastUpdated > out.LastUpdated {
		out.LastUpdated = remote.LastUpdated
	}
	for k, v := range local.Media {
		out.Media[k] = v
	}
	for k, remoteEntry := range remote.Media {
		localEntry, ok := out.Media[k]
		if !ok || remoteEntry.LastModified > localEntry.LastModified {
			out.Media[k] = remoteEntry
		}
	}
	for k, v := range local.Albums {
		out.Albums[k] = v
	}
	for k, remoteAlbum := range remote.Albums {
		if _, ok := out.Albums[k]; !ok {
			out.Albums[k] = remoteAlbum
		}
	}
	return out
}
