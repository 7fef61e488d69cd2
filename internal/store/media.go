package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func timePtrStr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// AddMedia inserts a new MediaItem. It fails with KindInvalidInput if hash
// collides with a non-deleted row; callers that want
// "insert or find existing" semantics should call FindByHash first.
func (s *Store) AddMedia(ctx context.Context, filePath, fileHash, thumbnailPath string, createdAt time.Time, meta Metadata, perceptualHash string) (id int64, err error) {
	err = s.withWriteLock(func() error {
		res, execErr := s.db.ExecContext(ctx, `
			INSERT INTO media_items (
				file_path, file_hash, perceptual_hash, mime_type, width, height,
				duration, size_bytes, thumbnail_path, created_at, date_taken,
				latitude, longitude, camera_make, camera_model, scan_status,
				face_status, tags_status, clip_status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'scanned', 'pending', 'pending', 'pending')
		`,
			filePath, nullableStr(fileHash), nullableStr(perceptualHash), meta.MimeType, meta.Width, meta.Height,
			meta.DurationSec, meta.SizeBytes, nullableStr(thumbnailPath), createdAt.UTC().Format(time.RFC3339), timePtrStr(meta.DateTaken),
			nullableFloat(meta.Latitude), nullableFloat(meta.Longitude), meta.CameraMake, meta.CameraModel,
		)
		if execErr != nil {
			if isUniqueConstraintErr(execErr) {
				return verr.Wrap(verr.KindInvalidInput, "file_hash already exists", execErr)
			}
			return verr.Wrap(verr.KindStorage, "insert media", execErr)
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	return id, err
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func isUniqueConstraintErr(err error) bool {
	// modernc.org/sqlite wraps the driver error; string match is the
	// pragmatic cross-version check. We want the insert to fail outright
	// on a duplicate hash so callers can dedupe by hash themselves,
	// rather than silently upserting.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const mediaColumns = `
	id, file_path, file_hash, perceptual_hash, blob_id, uploaded_at, is_encrypted,
	mime_type, width, height, duration, size_bytes, thumbnail_path, created_at,
	date_taken, latitude, longitude, camera_make, camera_model, is_favorite,
	rating, is_deleted, deleted_at, is_archived, archived_at, is_cloud_only,
	scan_status, face_status, tags_status, clip_status, clip_embedding
`

func scanMediaItem(row interface{ Scan(...any) error }) (MediaItem, error) {
	var m MediaItem
	var fileHash, phash, blobID, uploadedAt, thumb, dateTaken, cameraMake, cameraModel, deletedAt, archivedAt sql.NullString
	var createdAt string
	var lat, lon sql.NullFloat64
	var clipEmb []byte
	err := row.Scan(
		&m.ID, &m.FilePath, &fileHash, &phash, &blobID, &uploadedAt, &m.IsEncrypted,
		&m.MimeType, &m.Width, &m.Height, &m.DurationSec, &m.SizeBytes, &thumb, &createdAt,
		&dateTaken, &lat, &lon, &cameraMake, &cameraModel, &m.IsFavorite,
		&m.Rating, &m.IsDeleted, &deletedAt, &m.IsArchived, &archivedAt, &m.IsCloudOnly,
		&m.ScanStatus, &m.FaceStatus, &m.TagsStatus, &m.ClipStatus, &clipEmb,
	)
	if err != nil {
		return MediaItem{}, err
	}
	m.FileHash = fileHash.String
	m.PerceptualHash = phash.String
	m.BlobID = blobID.String
	m.UploadedAt = parseTimePtr(uploadedAt)
	m.ThumbnailPath = thumb.String
	m.CreatedAt = parseOrZero(createdAt)
	m.DateTaken = parseTimePtr(dateTaken)
	m.CameraMake = cameraMake.String
	m.CameraModel = cameraModel.String
	m.DeletedAt = parseTimePtr(deletedAt)
	m.ArchivedAt = parseTimePtr(archivedAt)
	if lat.Valid {
		v := lat.Float64
		m.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		m.Longitude = &v
	}
	m.ClipEmbedding = decodeFloat32s(clipEmb)
	return m, nil
}

// created_at is stored as TEXT: AddMedia writes it as an RFC3339 string,
// and scanMediaItem reads it back into a string and parses it with
// parseOrZero.

func (s *Store) GetMedia(ctx context.Context, id int64) (MediaItem, error) {
	var m MediaItem
	err := s.withReadLock(func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_items WHERE id = ?`, id)
		var scanErr error
		m, scanErr = scanMediaItem(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return verr.New(verr.KindNotFound, "media not found")
		}
		return scanErr
	})
	return m, err
}

func (s *Store) FindByHash(ctx context.Context, hash string) (MediaItem, error) {
	var m MediaItem
	err := s.withReadLock(func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_items WHERE file_hash = ? AND is_deleted = 0`, hash)
		var scanErr error
		m, scanErr = scanMediaItem(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return verr.New(verr.KindNotFound, "media not found")
		}
		return scanErr
	})
	return m, err
}

// FindByBlobID looks up a non-deleted item by its cloud blob id, used by
// the Cloud Sync Worker to decide whether an incoming history entry is
// already known locally.
func (s *Store) FindByBlobID(ctx context.Context, blobID string) (MediaItem, error) {
	var m MediaItem
	err := s.withReadLock(func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_items WHERE blob_id = ? AND is_deleted = 0`, blobID)
		var scanErr error
		m, scanErr = scanMediaItem(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return verr.New(verr.KindNotFound, "media not found")
		}
		return scanErr
	})
	return m, err
}

// SetCloudBlobID records the cloud blob id on an already-indexed item
// without touching uploaded_at/is_encrypted, for the case
// step 4 where the local file is known but the Store hadn't yet recorded
// the cloud copy.
func (s *Store) SetCloudBlobID(ctx context.Context, mediaID int64, blobID string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET blob_id = ? WHERE id = ? AND (blob_id IS NULL OR blob_id = '')`, blobID, mediaID)
		return err
	})
}

// GetNextItemToScan returns the most recent non-deleted item whose
// scan_status is pending.
func (s *Store) GetNextItemToScan(ctx context.Context) (*MediaItem, error) {
	var out *MediaItem
	err := s.withReadLock(func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+mediaColumns+` FROM media_items
			WHERE is_deleted = 0 AND scan_status = 'pending'
			ORDER BY created_at DESC LIMIT 1
		`)
		m, scanErr := scanMediaItem(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		out = &m
		return nil
	})
	return out, err
}

// GetNextItemForAI returns the most recently created, non-deleted, scanned
// item still needing at least one of face/tags/clip processing, so the AI
// Worker's scheduler has a single query to drive its loop
// regardless of which passes are currently gated on.
func (s *Store) GetNextItemForAI(ctx context.Context) (*MediaItem, error) {
	var out *MediaItem
	err := s.withReadLock(func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+mediaColumns+` FROM media_items
			WHERE is_deleted = 0 AND scan_status = 'scanned'
			  AND (face_status = 'pending' OR tags_status = 'pending' OR clip_status = 'pending')
			ORDER BY created_at DESC LIMIT 1
		`)
		m, scanErr := scanMediaItem(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		out = &m
		return nil
	})
	return out, err
}

// QueuePendingFaceScans marks scanned, non-deleted items whose face_status
// is not already 'done' back to 'pending', so a worker reprocesses them
// once the feature is (re)enabled. Items already done are untouched.
func (s *Store) QueuePendingFaceScans(ctx context.Context) (int, error) {
	return s.queueFeatureScans(ctx, "face_status")
}

func (s *Store) QueuePendingTagScans(ctx context.Context) (int, error) {
	return s.queueFeatureScans(ctx, "tags_status")
}

func (s *Store) QueuePendingClipScans(ctx context.Context) (int, error) {
	return s.queueFeatureScans(ctx, "clip_status")
}

func (s *Store) queueFeatureScans(ctx context.Context, column string) (int, error) {
	var count int64
	err := s.withWriteLock(func() error {
		res, execErr := s.db.ExecContext(ctx, `
			UPDATE media_items SET `+column+` = 'pending'
			WHERE is_deleted = 0 AND scan_status = 'scanned' AND `+column+` != 'done'
		`)
		if execErr != nil {
			return verr.Wrap(verr.KindStorage, "queue feature scans", execErr)
		}
		count, execErr = res.RowsAffected()
		return execErr
	})
	return int(count), err
}

func (s *Store) SetScanStatus(ctx context.Context, id int64, status string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET scan_status = ? WHERE id = ?`, status, id)
		return err
	})
}

func (s *Store) SetFaceStatus(ctx context.Context, id int64, status string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET face_status = ? WHERE id = ?`, status, id)
		return err
	})
}

func (s *Store) SetTagsStatus(ctx context.Context, id int64, status string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET tags_status = ? WHERE id = ?`, status, id)
		return err
	})
}

func (s *Store) SetClipStatus(ctx context.Context, id int64, status string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET clip_status = ? WHERE id = ?`, status, id)
		return err
	})
}

func (s *Store) SetClipEmbedding(ctx context.Context, id int64, embedding []float32) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET clip_embedding = ?, clip_status = 'done' WHERE id = ?`,
			encodeFloat32s(embedding), id)
		return err
	})
}

// SetUploaded records the blob ID returned by the blob store and marks the
// item uploaded; encrypted reflects whether the cloud copy is a vault
// container.
func (s *Store) SetUploaded(ctx context.Context, filePath, blobID string, encrypted bool) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE media_items SET blob_id = ?, uploaded_at = ?, is_encrypted = ?
			WHERE file_path = ?
		`, blobID, nowRFC3339(), encrypted, filePath)
		return err
	})
}

// SetThumbnailPath updates where a media item's thumbnail lives on disk,
// used by the encryption migration orchestrator after it rewrites a
// plaintext thumbnail as a .wbenc container.
func (s *Store) SetThumbnailPath(ctx context.Context, id int64, path string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET thumbnail_path = ? WHERE id = ?`, nullableStr(path), id)
		return err
	})
}

func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET is_favorite = ? WHERE id = ?`, favorite, id)
		return err
	})
}

func (s *Store) SetRating(ctx context.Context, id int64, rating int) error {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET rating = ? WHERE id = ?`, rating, id)
		return err
	})
}

func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET is_deleted = 1, deleted_at = ? WHERE id = ?`, nowRFC3339(), id)
		return err
	})
}

func (s *Store) SetArchived(ctx context.Context, id int64, archived bool) error {
	return s.withWriteLock(func() error {
		var archivedAt interface{}
		if archived {
			archivedAt = nowRFC3339()
		}
		_, err := s.db.ExecContext(ctx, `UPDATE media_items SET is_archived = ?, archived_at = ? WHERE id = ?`, archived, archivedAt, id)
		return err
	})
}

// BulkSetFavorite, BulkSoftDelete, BulkAddToAlbum implement the
// bulk operations.
func (s *Store) BulkSetFavorite(ctx context.Context, ids []int64, favorite bool) error {
	return s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE media_items SET is_favorite = ? WHERE id = ?`, favorite, id); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *Store) BulkSoftDelete(ctx context.Context, ids []int64) error {
	return s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		now := nowRFC3339()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE media_items SET is_deleted = 1, deleted_at = ? WHERE id = ?`, now, id); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *Store) BulkAddToAlbum(ctx context.Context, albumID int64, mediaIDs []int64) error {
	return s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		now := nowRFC3339()
		for _, mediaID := range mediaIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO album_memberships (album_id, media_id, added_at) VALUES (?, ?, ?)
				ON CONFLICT(album_id, media_id) DO NOTHING
			`, albumID, mediaID, now); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

// ReconcileCloudOnlyFlags sets is_cloud_only = true for every non-deleted
// item with a blob_id whose local file is absent. fileExists is injected
// so the store package stays free of a direct os.Stat dependency on
// caller-controlled paths during tests.
func (s *Store) ReconcileCloudOnlyFlags(ctx context.Context, fileExists func(path string) bool) (int, error) {
	type row struct {
		id   int64
		path string
	}
	var candidates []row
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, file_path FROM media_items
			WHERE is_deleted = 0 AND blob_id IS NOT NULL AND blob_id != '' AND is_cloud_only = 0
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.id, &r.path); err != nil {
				return err
			}
			candidates = append(candidates, r)
		}
		return rows.Err()
	})
	if err != nil {
		return 0, err
	}

	var toFlag []int64
	for _, c := range candidates {
		if !fileExists(c.path) {
			toFlag = append(toFlag, c.id)
		}
	}
	if len(toFlag) == 0 {
		return 0, nil
	}
	err = s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, id := range toFlag {
			if _, err := tx.ExecContext(ctx, `UPDATE media_items SET is_cloud_only = 1 WHERE id = ?`, id); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	return len(toFlag), err
}

// EmptyTrash deletes media rows whose deleted_at is strictly older than
// retention, cascading faces/tags/album-memberships and nulling any
// person cover that pointed at one of the deleted faces, all within one
// transaction.
func (s *Store) EmptyTrash(ctx context.Context, retention time.Duration) (count int, blobIDs []string, err error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	err = s.withWriteLock(func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}

		rows, qErr := tx.QueryContext(ctx, `
			SELECT id, blob_id FROM media_items
			WHERE is_deleted = 1 AND deleted_at IS NOT NULL AND deleted_at < ?
		`, cutoff)
		if qErr != nil {
			_ = tx.Rollback()
			return qErr
		}
		var ids []int64
		for rows.Next() {
			var id int64
			var blobID sql.NullString
			if err := rows.Scan(&id, &blobID); err != nil {
				rows.Close()
				_ = tx.Rollback()
				return err
			}
			ids = append(ids, id)
			if blobID.Valid && blobID.String != "" {
				blobIDs = append(blobIDs, blobID.String)
			}
		}
		rows.Close()
		if rErr := rows.Err(); rErr != nil {
			_ = tx.Rollback()
			return rErr
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				UPDATE persons SET cover_face_id = NULL
				WHERE cover_face_id IN (SELECT id FROM faces WHERE media_id = ?)
			`, id); err != nil {
				_ = tx.Rollback()
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM faces WHERE media_id = ?`, id); err != nil {
				_ = tx.Rollback()
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM media_tags WHERE media_id = ?`, id); err != nil {
				_ = tx.Rollback()
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM album_memberships WHERE media_id = ?`, id); err != nil {
				_ = tx.Rollback()
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM media_items WHERE id = ?`, id); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		count = len(ids)
		return tx.Commit()
	})
	return count, blobIDs, err
}

// GetAllClipEmbeddings bulk-reads every indexed CLIP vector for semantic
// query.
func (s *Store) GetAllClipEmbeddings(ctx context.Context) ([]ClipEmbeddingRow, error) {
	var out []ClipEmbeddingRow
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, clip_embedding FROM media_items
			WHERE is_deleted = 0 AND clip_status = 'done' AND clip_embedding IS NOT NULL
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var raw []byte
			if err := rows.Scan(&id, &raw); err != nil {
				return err
			}
			out = append(out, ClipEmbeddingRow{MediaID: id, Embedding: decodeFloat32s(raw)})
		}
		return rows.Err()
	})
	return out, err
}

type ClipEmbeddingRow struct {
	MediaID   int64
	Embedding []float32
}

// ListAllWithPerceptualHash returns every non-deleted item with a
// non-null perceptual hash, for the duplicate grouper.
func (s *Store) ListAllWithPerceptualHash(ctx context.Context) ([]MediaItem, error) {
	var out []MediaItem
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+mediaColumns+` FROM media_items
			WHERE is_deleted = 0 AND perceptual_hash IS NOT NULL AND perceptual_hash != ''
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
