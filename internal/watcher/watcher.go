// Package watcher observes the vault's backup directory recursively and
// drives the ingestion pipeline for every file of interest, using
// fsnotify's directory-walk-and-watch idiom.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ronimuliawan/Wanderer/internal/events"
	"github.com/ronimuliawan/Wanderer/internal/ingest"
	"github.com/ronimuliawan/Wanderer/internal/store"
)

// Watcher owns the fsnotify handle and drives Pipeline.IngestFile for every
// change event and for the startup catch-up scan; the initial scan always
// precedes change events on the same channel.
type Watcher struct {
	dir      string
	pipeline *ingest.Pipeline
	store    *store.Store
	sink     events.Sink
	log      *log.Logger
}

func New(dir string, pipeline *ingest.Pipeline, st *store.Store, sink events.Sink, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[watcher] ", log.LstdFlags|log.LUTC)
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Watcher{dir: dir, pipeline: pipeline, store: st, sink: sink, log: logger}
}

// Run performs the startup catch-up scan, then blocks processing fsnotify
// events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Printf("initial scan of %s", w.dir)
	w.scanExisting(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Printf("fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		_ = w.addTree(fw, ev.Name)
		return
	}
	w.ingestOne(ctx, ev.Name)
}

func (w *Watcher) scanExisting(ctx context.Context) {
	_ = filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || d.IsDir() {
			return nil
		}
		w.ingestOne(ctx, path)
		return nil
	})
}

func (w *Watcher) ingestOne(ctx context.Context, path string) {
	if ingest.IsTemp(path) {
		return
	}
	outcome, err := w.pipeline.IngestFile(ctx, path, func(p string) error {
		_, enqErr := w.store.EnqueueUpload(ctx, p)
		return enqErr
	})
	if err != nil {
		w.log.Printf("ingest %s: %v", path, err)
		return
	}
	if outcome.Created {
		w.sink.MediaAdded(outcome.MediaID, path)
	}
}
