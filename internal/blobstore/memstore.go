package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// MemStore is an in-memory Store used by worker tests; it never talks to
// a real network backend.
type MemStore struct {
	mu           sync.Mutex
	blobs        map[string][]byte
	refs         map[string]BlobRef
	nextID       int64
	credentialed bool
	authorized   bool

	// ForceRateLimitOnce, if non-empty, is returned verbatim as the error
	// text of the next UploadStream call, then cleared.
	ForceRateLimitOnce string
}

func NewMemStore() *MemStore {
	return &MemStore{
		blobs:        map[string][]byte{},
		refs:         map[string]BlobRef{},
		credentialed: true,
		authorized:   true,
	}
}

func (m *MemStore) IsCredentialed() bool { return m.credentialed }
func (m *MemStore) IsAuthorized() bool   { return m.authorized }

func (m *MemStore) SetAuthorized(v bool) { m.authorized = v }

func (m *MemStore) UploadStream(_ context.Context, r io.Reader, totalBytes int64, filename string, progress ProgressFunc) (string, error) {
	m.mu.Lock()
	if m.ForceRateLimitOnce != "" {
		text := m.ForceRateLimitOnce
		m.ForceRateLimitOnce = ""
		m.mu.Unlock()
		return "", fmt.Errorf("%s", text)
	}
	m.mu.Unlock()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if progress != nil {
		progress(int64(len(data)), totalBytes)
	}

	id := fmt.Sprintf("mem-%d", atomic.AddInt64(&m.nextID, 1))
	m.mu.Lock()
	m.blobs[id] = data
	m.refs[id] = BlobRef{ID: id, Filename: filename, SizeBytes: int64(len(data)), UploadedAt: time.Now().UTC()}
	m.mu.Unlock()
	return id, nil
}

func (m *MemStore) Download(_ context.Context, blobID, destPath string) error {
	m.mu.Lock()
	data, ok := m.blobs[blobID]
	m.mu.Unlock()
	if !ok {
		return verr.New(verr.KindNotFound, "blob not found")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (m *MemStore) History(_ context.Context, offset, limit int) ([]BlobRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BlobRef, 0, len(m.refs))
	for _, ref := range m.refs {
		out = append(out, ref)
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) || limit <= 0 {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *MemStore) Delete(_ context.Context, blobIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, id := range blobIDs {
		if _, ok := m.blobs[id]; ok {
			delete(m.blobs, id)
			delete(m.refs, id)
			count++
		}
	}
	return count, nil
}

func (m *MemStore) RequestLoginCode(_ context.Context, _ string) error { return nil }
func (m *MemStore) SignIn(_ context.Context, _ string) error           { return nil }
func (m *MemStore) Logout(_ context.Context) error                    { return nil }
