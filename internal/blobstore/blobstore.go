// Package blobstore defines the abstract cloud object-store client the
// Upload Worker and Cloud Sync Worker depend on, and its rate-limit text
// parsing.
package blobstore

import (
	"context"
	"io"
	"time"
)

// BlobRef describes one remote object as returned by History.
type BlobRef struct {
	ID         string
	Filename   string
	MimeType   string
	SizeBytes  int64
	UploadedAt time.Time
}

// ProgressFunc is invoked at most once per ~1% of total bytes or ~64 KiB,
// whichever is larger.
type ProgressFunc func(sent, total int64)

// Store is the cloud-backed opaque blob store abstraction. Implementations
// must surface rate-limit conditions as an error whose Error() text
// contains one of the three patterns ParseRateLimitWait recognizes.
type Store interface {
	UploadStream(ctx context.Context, r io.Reader, totalBytes int64, filename string, progress ProgressFunc) (blobID string, err error)
	Download(ctx context.Context, blobID, destPath string) error
	History(ctx context.Context, offset, limit int) ([]BlobRef, error)
	Delete(ctx context.Context, blobIDs []string) (int, error)

	RequestLoginCode(ctx context.Context, identifier string) error
	SignIn(ctx context.Context, code string) error
	Logout(ctx context.Context) error

	// IsCredentialed reports whether a session file has been loaded.
	IsCredentialed() bool
	// IsAuthorized reports whether the loaded session is actually usable
	// (the Cloud Sync worker waits for both before a cycle; the Upload
	// worker does not check either).
	IsAuthorized() bool
}
