// Package thumbcache implements the bounded thumbnail LRU and the
// size/age-bounded view cache below.
package thumbcache

import (
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the default thumbnail LRU size by entry count.
const DefaultCapacity = 2000

// ThumbnailCache is a bounded LRU keyed by content digest, valued by
// filesystem path. Eviction removes the underlying file from disk.
type ThumbnailCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, string]
}

func NewThumbnailCache(capacity int) (*ThumbnailCache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	tc := &ThumbnailCache{}
	c, err := lru.NewWithEvict[string, string](capacity, func(_ string, path string) {
		_ = os.Remove(path)
	})
	if err != nil {
		return nil, err
	}
	tc.lru = c
	return tc, nil
}

func (tc *ThumbnailCache) Put(digest, path string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.lru.Add(digest, path)
}

func (tc *ThumbnailCache) Get(digest string) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lru.Get(digest)
}

func (tc *ThumbnailCache) Remove(digest string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.lru.Remove(digest)
}

func (tc *ThumbnailCache) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lru.Len()
}
