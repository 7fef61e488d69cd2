// Command wandererd wires together the vault engine's background workers:
// load config, open the Store, construct each collaborator, start the
// long-running loops, and block on a signal for a clean shutdown. The UI
// host process and its command surface live elsewhere; this binary runs
// the engine standalone.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/ai"
	"github.com/ronimuliawan/Wanderer/internal/blobstore"
	"github.com/ronimuliawan/Wanderer/internal/cloudsync"
	"github.com/ronimuliawan/Wanderer/internal/config"
	"github.com/ronimuliawan/Wanderer/internal/events"
	"github.com/ronimuliawan/Wanderer/internal/ingest"
	"github.com/ronimuliawan/Wanderer/internal/store"
	"github.com/ronimuliawan/Wanderer/internal/thumbcache"
	"github.com/ronimuliawan/Wanderer/internal/upload"
	"github.com/ronimuliawan/Wanderer/internal/vault"
	"github.com/ronimuliawan/Wanderer/internal/watcher"
)

func main() {
	logger := log.New(os.Stdout, "wanderer ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer st.Close()

	ensureDeviceID(st, logger)

	v := vault.New(st)

	blob, err := blobstore.NewTelegramStore(cfg.AppDataDir)
	if err != nil {
		logger.Fatalf("blob store: %v", err)
	}

	sink := events.LoggingSink{Log: logger}
	pipeline := ingest.New(st, v, cfg.ThumbnailDir)

	thumbCache, err := thumbcache.NewThumbnailCache(thumbcache.DefaultCapacity)
	if err != nil {
		logger.Fatalf("thumbnail cache: %v", err)
	}
	_ = thumbCache // populated lazily by callers that read thumbnails; kept alive for its eviction policy.

	viewCache := thumbcache.NewViewCache(cfg.ViewCacheDir, log.New(os.Stdout, "wanderer [viewcache] ", log.LstdFlags|log.LUTC))

	w := watcher.New(cfg.BackupDir, pipeline, st, sink, log.New(os.Stdout, "wanderer [watcher] ", log.LstdFlags|log.LUTC))

	uploadWorker := upload.New(st, v, blob, sink, filepath.Join(cfg.AppDataDir, "tmp", "upload"),
		log.New(os.Stdout, "wanderer [upload] ", log.LstdFlags|log.LUTC))
	if cfg.UploadCooldownSeconds > 0 {
		uploadWorker.Cooldown = time.Duration(cfg.UploadCooldownSeconds) * time.Second
	}

	syncWorker := cloudsync.New(st, v, blob, pipeline, cfg.BackupDir,
		log.New(os.Stdout, "wanderer [sync] ", log.LstdFlags|log.LUTC))
	if cfg.SyncPollSeconds > 0 {
		syncWorker.Poll = time.Duration(cfg.SyncPollSeconds) * time.Second
	}

	aiWorker := ai.New(st, cfg.ModelsDir, log.New(os.Stdout, "wanderer [ai] ", log.LstdFlags|log.LUTC))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runLoop(logger, "watcher", func() error { return w.Run(ctx) })
	go uploadWorker.Run(ctx)
	go syncWorker.Run(ctx)
	go aiWorker.Run(ctx)
	go viewCache.Run(ctx)

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Printf("shutting down...")
	cancel()
}

// runLoop logs and swallows a panic from fn so one misbehaving
// collaborator can't take the whole process down with it.
func runLoop(logger *log.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("%s panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		logger.Printf("%s exited: %v", name, err)
	}
}

func ensureDeviceID(st *store.Store, logger *log.Logger) {
	ctx := context.Background()
	if _, err := st.GetConfig(ctx, "device_id"); err == nil {
		return
	}
	if err := st.SetConfig(ctx, "device_id", config.NewDeviceID()); err != nil {
		logger.Printf("set device id: %v", err)
	}
}
