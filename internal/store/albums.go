package store

import (
	"context"
	"strings"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

func (s *Store) CreateAlbum(ctx context.Context, name string) (id int64, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, verr.New(verr.KindInvalidInput, "album name must not be empty")
	}
	err = s.withWriteLock(func() error {
		res, execErr := s.db.ExecContext(ctx, `INSERT INTO albums (name, created_at) VALUES (?, ?)`, name, nowRFC3339())
		if execErr != nil {
			if isUniqueConstraintErr(execErr) {
				return verr.Wrap(verr.KindInvalidInput, "album already exists", execErr)
			}
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	return id, err
}

func (s *Store) ListAlbums(ctx context.Context) ([]Album, error) {
	var out []Album
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM albums ORDER BY name ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var a Album
			var createdAt string
			if err := rows.Scan(&a.ID, &a.Name, &createdAt); err != nil {
				return err
			}
			a.CreatedAt = parseOrZero(createdAt)
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) AddToAlbum(ctx context.Context, albumID, mediaID int64) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO album_memberships (album_id, media_id, added_at) VALUES (?, ?, ?)
			ON CONFLICT(album_id, media_id) DO NOTHING
		`, albumID, mediaID, nowRFC3339())
		return err
	})
}
