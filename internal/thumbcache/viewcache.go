package thumbcache

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// accessTime approximates last-access time with mtime: real atime is
// frequently disabled (relatime/noatime mounts) and not worth a
// per-platform syscall for a cache sweep.
func accessTime(info os.FileInfo) time.Time {
	return info.ModTime()
}

const (
	DefaultMaxTotalBytes = 500 * 1024 * 1024
	DefaultMaxIdle       = 24 * time.Hour
	initialSweepDelay    = 10 * time.Second
	sweepInterval        = 10 * time.Minute
)

// ViewCache governs a directory of materialized views for cloud-only
// media: entries older than MaxIdle (by access time) are removed, then if
// the directory is still over MaxTotalBytes the oldest-accessed entries
// are removed until it fits.
type ViewCache struct {
	Dir            string
	MaxTotalBytes  int64
	MaxIdle        time.Duration
	Logger         *log.Logger
}

func NewViewCache(dir string, logger *log.Logger) *ViewCache {
	return &ViewCache{
		Dir:           dir,
		MaxTotalBytes: DefaultMaxTotalBytes,
		MaxIdle:       DefaultMaxIdle,
		Logger:        logger,
	}
}

// Run starts the periodic sweeper; it blocks until ctx is cancelled.
func (vc *ViewCache) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(initialSweepDelay):
	}
	vc.sweepOnce()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vc.sweepOnce()
		}
	}
}

type viewEntry struct {
	path       string
	size       int64
	accessTime time.Time
}

func (vc *ViewCache) sweepOnce() {
	entries, err := vc.listEntries()
	if err != nil {
		if vc.Logger != nil {
			vc.Logger.Printf("view cache sweep: list failed: %v", err)
		}
		return
	}

	now := time.Now()
	var kept []viewEntry
	var total int64
	for _, e := range entries {
		if now.Sub(e.accessTime) > vc.MaxIdle {
			os.Remove(e.path)
			continue
		}
		kept = append(kept, e)
		total += e.size
	}

	if total > vc.MaxTotalBytes {
		sort.Slice(kept, func(i, j int) bool { return kept[i].accessTime.Before(kept[j].accessTime) })
		i := 0
		for total > vc.MaxTotalBytes && i < len(kept) {
			os.Remove(kept[i].path)
			total -= kept[i].size
			i++
		}
	}
}

func (vc *ViewCache) listEntries() ([]viewEntry, error) {
	dirEntries, err := os.ReadDir(vc.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]viewEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, viewEntry{
			path:       filepath.Join(vc.Dir, de.Name()),
			size:       info.Size(),
			accessTime: accessTime(info),
		})
	}
	return out, nil
}
