package store

import (
	"context"
	"database/sql"
	"strconv"
)

// migrate runs the canonical schema forward from whatever user_version it
// finds, one transaction per step. Schema choice note: the
// original carried several legacy shapes of the tags/persons tables; we
// define the schema once here and do not attempt to replay that history --
// every migration below is additive.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}

	// SQLite refuses to switch into WAL mode inside a transaction, so the
	// journal mode is set here, before the per-step transactions below.
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return err
	}

	migrations := []func(context.Context, *sql.Tx) error{
		migrate001InitialSchema,
		migrate002Migration,
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := migrations[i](ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(i+1)); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func migrate001InitialSchema(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS media_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			file_hash TEXT,
			perceptual_hash TEXT,
			blob_id TEXT,
			uploaded_at TEXT,
			is_encrypted INTEGER NOT NULL DEFAULT 0,
			mime_type TEXT,
			width INTEGER,
			height INTEGER,
			duration REAL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			thumbnail_path TEXT,
			created_at TEXT NOT NULL,
			date_taken TEXT,
			latitude REAL,
			longitude REAL,
			camera_make TEXT,
			camera_model TEXT,
			is_favorite INTEGER NOT NULL DEFAULT 0,
			rating INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at TEXT,
			is_archived INTEGER NOT NULL DEFAULT 0,
			archived_at TEXT,
			is_cloud_only INTEGER NOT NULL DEFAULT 0,
			scan_status TEXT NOT NULL DEFAULT 'pending',
			face_status TEXT NOT NULL DEFAULT 'pending',
			tags_status TEXT NOT NULL DEFAULT 'pending',
			clip_status TEXT NOT NULL DEFAULT 'pending',
			clip_embedding BLOB
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_media_items_hash_not_deleted
			ON media_items(file_hash) WHERE is_deleted = 0 AND file_hash IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_scan_status ON media_items(scan_status);`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_face_status ON media_items(face_status);`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_tags_status ON media_items(tags_status);`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_clip_status ON media_items(clip_status);`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_deleted_at ON media_items(deleted_at);`,

		`CREATE TABLE IF NOT EXISTS upload_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			retries INTEGER NOT NULL DEFAULT 0,
			error_msg TEXT,
			added_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_upload_queue_status ON upload_queue(status, added_at);`,

		`CREATE TABLE IF NOT EXISTS albums (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS album_memberships (
			album_id INTEGER NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
			media_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
			added_at TEXT NOT NULL,
			UNIQUE(album_id, media_id)
		);`,

		`CREATE TABLE IF NOT EXISTS persons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			display_name TEXT NOT NULL,
			cover_face_id INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS faces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			media_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
			x REAL NOT NULL,
			y REAL NOT NULL,
			w REAL NOT NULL,
			h REAL NOT NULL,
			score REAL NOT NULL,
			embedding BLOB,
			person_id INTEGER REFERENCES persons(id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_faces_media_id ON faces(media_id);`,
		`CREATE INDEX IF NOT EXISTS idx_faces_person_id ON faces(person_id);`,

		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS media_tags (
			media_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
			tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			confidence REAL NOT NULL DEFAULT 1.0,
			UNIQUE(media_id, tag_id)
		);`,

		`CREATE TABLE IF NOT EXISTS config_entries (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrate002Migration creates the migration_journal table. The encryption
// migration orchestrator's per-item crash journal is kept in
// config_entries instead (see MarkMigrationPending); nothing reads or
// writes this table.
func migrate002Migration(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migration_journal (
			media_id INTEGER PRIMARY KEY,
			new_blob_id TEXT,
			stage TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}
