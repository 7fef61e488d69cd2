package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// SecurityKeyPrefix marks config keys writable only through dedicated
// vault operations, never through SetConfig.
const SecurityKeyPrefix = "security_"

// SetConfig writes a generic, user-facing config entry. It refuses keys
// under SecurityKeyPrefix -- those are written exclusively by
// internal/vault.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if strings.HasPrefix(key, SecurityKeyPrefix) {
		return verr.New(verr.KindInvalidInput, "security_ prefixed keys are not settable via SetConfig")
	}
	return s.setConfigInternal(ctx, key, value)
}

// SetSecurityConfig is the only path that may write security_ prefixed
// keys; called exclusively from internal/vault.
func (s *Store) SetSecurityConfig(ctx context.Context, key, value string) error {
	if !strings.HasPrefix(key, SecurityKeyPrefix) {
		return verr.New(verr.KindInvalidInput, "SetSecurityConfig requires a security_ prefixed key")
	}
	return s.setConfigInternal(ctx, key, value)
}

func (s *Store) setConfigInternal(ctx context.Context, key, value string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO config_entries (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, nowRFC3339())
		return err
	})
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.withReadLock(func() error {
		scanErr := s.db.QueryRowContext(ctx, `SELECT value FROM config_entries WHERE key = ?`, key).Scan(&value)
		if scanErr == sql.ErrNoRows {
			return verr.New(verr.KindNotFound, "config key not set")
		}
		return scanErr
	})
	return value, err
}

func (s *Store) GetConfigDefault(ctx context.Context, key, def string) string {
	v, err := s.GetConfig(ctx, key)
	if err != nil {
		return def
	}
	return v
}
