// Package config loads process bootstrap configuration from the
// environment into a flat struct populated by env() with defaults,
// validated once at startup. Runtime-mutable keys (security_*,
// ai_*_enabled, ...) live in
// the Store's ConfigEntry table instead; see internal/store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Config holds the paths and knobs fixed for the lifetime of a process.
type Config struct {
	AppDataDir string

	DatabasePath    string
	BackupDir       string
	ThumbnailDir    string
	ViewCacheDir    string
	ModelsDir       string
	SessionDBPath   string

	UploadCooldownSeconds int
	SyncPollSeconds       int
}

func Load() (Config, error) {
	appData := env("WANDERER_APP_DATA", defaultAppDataDir())
	cfg := Config{
		AppDataDir:            appData,
		DatabasePath:          filepath.Join(appData, "library.db"),
		BackupDir:             filepath.Join(appData, "backup"),
		ThumbnailDir:          filepath.Join(appData, "cache", "thumbnails"),
		ViewCacheDir:          filepath.Join(appData, "view_cache"),
		ModelsDir:             filepath.Join(appData, "models"),
		SessionDBPath:         filepath.Join(appData, "session.db"),
		UploadCooldownSeconds: envInt("WANDERER_UPLOAD_COOLDOWN_S", 2),
		SyncPollSeconds:       envInt("WANDERER_SYNC_POLL_S", 60),
	}
	if strings.TrimSpace(cfg.AppDataDir) == "" {
		return Config{}, fmt.Errorf("app data directory required")
	}
	for _, dir := range []string{cfg.AppDataDir, cfg.BackupDir, cfg.ThumbnailDir, cfg.ViewCacheDir, cfg.ModelsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return cfg, nil
}

func defaultAppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wanderer"
	}
	return filepath.Join(home, ".wanderer")
}

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// NewDeviceID generates a stable device identifier, persisted once by the
// caller into ConfigEntry key "device_id".
func NewDeviceID() string {
	return uuid.NewString()
}
