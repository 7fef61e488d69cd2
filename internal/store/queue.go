package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// EnqueueUpload is idempotent on file_path while a prior row is pending or
// uploading.
func (s *Store) EnqueueUpload(ctx context.Context, filePath string) (id int64, err error) {
	err = s.withWriteLock(func() error {
		var existing int64
		scanErr := s.db.QueryRowContext(ctx, `
			SELECT id FROM upload_queue WHERE file_path = ? AND status IN ('pending', 'uploading') LIMIT 1
		`, filePath).Scan(&existing)
		if scanErr == nil {
			id = existing
			return nil
		}
		if !errors.Is(scanErr, sql.ErrNoRows) {
			return scanErr
		}
		res, execErr := s.db.ExecContext(ctx, `
			INSERT INTO upload_queue (file_path, status, retries, added_at) VALUES (?, 'pending', 0, ?)
		`, filePath, nowRFC3339())
		if execErr != nil {
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	return id, err
}

func scanQueueItem(row interface{ Scan(...any) error }) (UploadQueueItem, error) {
	var q UploadQueueItem
	var errMsg sql.NullString
	var addedAt string
	if err := row.Scan(&q.ID, &q.FilePath, &q.Status, &q.Retries, &errMsg, &addedAt); err != nil {
		return UploadQueueItem{}, err
	}
	q.ErrorMsg = errMsg.String
	if t, err := time.Parse(time.RFC3339, addedAt); err == nil {
		q.AddedAt = t
	}
	return q, nil
}

const queueColumns = `id, file_path, status, retries, error_msg, added_at`

// NextPendingUpload returns the oldest pending queue item, enforcing the
// strict-FIFO ordering the upload worker relies on.
func (s *Store) NextPendingUpload(ctx context.Context) (*UploadQueueItem, error) {
	var out *UploadQueueItem
	err := s.withReadLock(func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+queueColumns+` FROM upload_queue WHERE status = 'pending' ORDER BY added_at ASC LIMIT 1
		`)
		q, scanErr := scanQueueItem(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		out = &q
		return nil
	})
	return out, err
}

func (s *Store) SetQueueStatus(ctx context.Context, id int64, status string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE upload_queue SET status = ? WHERE id = ?`, status, id)
		return err
	})
}

func (s *Store) SetQueueFailed(ctx context.Context, id int64, errMsg string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE upload_queue SET status = 'failed', error_msg = ? WHERE id = ?
		`, errMsg, id)
		return err
	})
}

// RetryQueueItem creates a fresh pending row with an incremented retry
// counter.
func (s *Store) RetryQueueItem(ctx context.Context, id int64) (int64, error) {
	var newID int64
	err := s.withWriteLock(func() error {
		var filePath string
		var retries int
		if err := s.db.QueryRowContext(ctx, `SELECT file_path, retries FROM upload_queue WHERE id = ?`, id).
			Scan(&filePath, &retries); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return verr.New(verr.KindNotFound, "queue item not found")
			}
			return err
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO upload_queue (file_path, status, retries, added_at) VALUES (?, 'pending', ?, ?)
		`, filePath, retries+1, nowRFC3339())
		if err != nil {
			return err
		}
		newID, err = res.LastInsertId()
		return err
	})
	return newID, err
}

func (s *Store) ListQueue(ctx context.Context) ([]UploadQueueItem, error) {
	var out []UploadQueueItem
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT `+queueColumns+` FROM upload_queue ORDER BY added_at DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			q, err := scanQueueItem(rows)
			if err != nil {
				return err
			}
			out = append(out, q)
		}
		return rows.Err()
	})
	return out, err
}
