package store

import (
	"context"
	"encoding/json"
	"strconv"
)

// migrationStatusKey/migrationJournalPrefix are the security_-prefixed
// config keys reserved for the encryption migration
// orchestrator's persisted progress and per-item crash journal.
const (
	migrationStatusKey     = "security_migration_status"
	migrationJournalPrefix = "security_migration_pending_new_msg_"
)

// SaveMigrationStatus persists the orchestrator's progress counters so a
// restart can report the last known state before the in-memory run (if
// any) becomes authoritative again.
func (s *Store) SaveMigrationStatus(ctx context.Context, status MigrationStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.SetSecurityConfig(ctx, migrationStatusKey, string(raw))
}

// LoadMigrationStatus returns the last persisted progress, or the zero
// value if none was ever saved.
func (s *Store) LoadMigrationStatus(ctx context.Context) (MigrationStatus, error) {
	raw, err := s.GetConfig(ctx, migrationStatusKey)
	if err != nil {
		return MigrationStatus{}, nil
	}
	var status MigrationStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return MigrationStatus{}, err
	}
	return status, nil
}

// journalKey returns the per-item crash-journal key for mediaID.
func journalKey(mediaID int64) string {
	return migrationJournalPrefix + strconv.FormatInt(mediaID, 10)
}

// MarkMigrationPending journals that mediaID's encrypted reupload has
// started but not yet completed, so a crash-and-restart can tell it needs
// to resume rather than reupload a second time.
func (s *Store) MarkMigrationPending(ctx context.Context, mediaID int64, newBlobID string) error {
	return s.SetSecurityConfig(ctx, journalKey(mediaID), newBlobID)
}

// MigrationPendingBlobID returns the in-flight new blob ID journaled for
// mediaID, if any.
func (s *Store) MigrationPendingBlobID(ctx context.Context, mediaID int64) (string, bool) {
	v, err := s.GetConfig(ctx, journalKey(mediaID))
	if err != nil {
		return "", false
	}
	return v, true
}

// ClearMigrationPending removes mediaID's crash journal entry once the
// reupload has been committed (new blob ID recorded, deletion of the old
// blob attempted).
func (s *Store) ClearMigrationPending(ctx context.Context, mediaID int64) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE key = ?`, journalKey(mediaID))
		return err
	})
}

// ListAllEncryptableMedia returns every non-deleted, uploaded item not yet
// marked encrypted: the migration orchestrator's candidate set.
func (s *Store) ListAllEncryptableMedia(ctx context.Context) ([]MediaItem, error) {
	var out []MediaItem
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+mediaColumns+` FROM media_items
			WHERE is_deleted = 0 AND is_encrypted = 0 AND blob_id IS NOT NULL AND blob_id != ''
			ORDER BY id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMediaItem(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
