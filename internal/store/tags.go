package store

import "context"

// SetTagsForMedia replaces a media item's tags with the given (name,
// confidence) pairs, creating any tag rows that don't exist yet and
// deduplicating by name.
func (s *Store) SetTagsForMedia(ctx context.Context, mediaID int64, tags []TagConfidence) error {
	return s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_tags WHERE media_id = ?`, mediaID); err != nil {
			_ = tx.Rollback()
			return err
		}
		seen := map[string]bool{}
		for _, t := range tags {
			if seen[t.Name] {
				continue
			}
			seen[t.Name] = true
			if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, t.Name); err != nil {
				_ = tx.Rollback()
				return err
			}
			var tagID int64
			if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, t.Name).Scan(&tagID); err != nil {
				_ = tx.Rollback()
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO media_tags (media_id, tag_id, confidence) VALUES (?, ?, ?)
				ON CONFLICT(media_id, tag_id) DO UPDATE SET confidence = excluded.confidence
			`, mediaID, tagID, t.Confidence); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

type TagConfidence struct {
	Name       string
	Confidence float64
}

func (s *Store) ListTagsForMedia(ctx context.Context, mediaID int64) ([]TagConfidence, error) {
	var out []TagConfidence
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT t.name, mt.confidence FROM media_tags mt
			JOIN tags t ON t.id = mt.tag_id
			WHERE mt.media_id = ?
		`, mediaID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var tc TagConfidence
			if err := rows.Scan(&tc.Name, &tc.Confidence); err != nil {
				return err
			}
			out = append(out, tc)
		}
		return rows.Err()
	})
	return out, err
}

// LikeEscape escapes '%', '_' and the escape character itself for use in a
// SQL LIKE predicate with ESCAPE '\'.
func LikeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
