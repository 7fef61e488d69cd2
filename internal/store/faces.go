package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// FaceClusterThreshold is the cosine-similarity threshold below which a
// face starts a new person instead of joining an existing one. Hard-coded
// and coupled to the embedder, not user-configurable.
const FaceClusterThreshold = 0.5

// ReplaceFacesForMedia atomically swaps out any existing face rows for a
// media item for a freshly detected set, so a re-run of face detection
// never leaves both the old and new set visible. It
// also nulls any person's cover_face_id that pointed at a face about to
// be removed.
func (s *Store) ReplaceFacesForMedia(ctx context.Context, mediaID int64, detections []FaceDetection) ([]int64, error) {
	var ids []int64
	err := s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE persons SET cover_face_id = NULL
			WHERE cover_face_id IN (SELECT id FROM faces WHERE media_id = ?)
		`, mediaID); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM faces WHERE media_id = ?`, mediaID); err != nil {
			_ = tx.Rollback()
			return err
		}
		for _, d := range detections {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO faces (media_id, x, y, w, h, score) VALUES (?, ?, ?, ?, ?, ?)
			`, mediaID, d.X, d.Y, d.W, d.H, d.Score)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			ids = append(ids, id)
		}
		return tx.Commit()
	})
	return ids, err
}

// FaceDetection is a single bounding box + score produced by a detection
// pass, before embedding/clustering.
type FaceDetection struct {
	X, Y, W, H float64
	Score      float64
}

// StoreFaceEmbedding greedily clusters a face's embedding against every
// existing person's cover-face embedding, assigning it to the
// highest-similarity person above FaceClusterThreshold, else creating a
// new "Person {id}" with this face as its cover.
func (s *Store) StoreFaceEmbedding(ctx context.Context, faceID int64, embedding []float32) (personID int64, err error) {
	err = s.withWriteLock(func() error {
		if _, execErr := s.db.ExecContext(ctx, `UPDATE faces SET embedding = ? WHERE id = ?`, encodeFloat32s(embedding), faceID); execErr != nil {
			return execErr
		}

		rows, qErr := s.db.QueryContext(ctx, `
			SELECT p.id, f.embedding FROM persons p
			JOIN faces f ON f.id = p.cover_face_id
			WHERE f.embedding IS NOT NULL
		`)
		if qErr != nil {
			return qErr
		}
		var bestID int64
		bestScore := -2.0
		for rows.Next() {
			var pid int64
			var raw []byte
			if err := rows.Scan(&pid, &raw); err != nil {
				rows.Close()
				return err
			}
			sim := cosineSimilarity(embedding, decodeFloat32s(raw))
			if sim > bestScore {
				bestScore = sim
				bestID = pid
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if bestScore >= FaceClusterThreshold {
			personID = bestID
			_, err := s.db.ExecContext(ctx, `UPDATE faces SET person_id = ? WHERE id = ?`, personID, faceID)
			return err
		}

		now := nowRFC3339()
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO persons (display_name, cover_face_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		`, "", faceID, now, now)
		if err != nil {
			return err
		}
		personID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE persons SET display_name = ? WHERE id = ?`, fmt.Sprintf("Person %d", personID), personID); err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `UPDATE faces SET person_id = ? WHERE id = ?`, personID, faceID)
		return err
	})
	return personID, err
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return -2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -2
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (s *Store) GetPerson(ctx context.Context, id int64) (Person, error) {
	var p Person
	err := s.withReadLock(func() error {
		var coverFaceID sql.NullInt64
		var createdAt, updatedAt string
		scanErr := s.db.QueryRowContext(ctx, `
			SELECT id, display_name, cover_face_id, created_at, updated_at FROM persons WHERE id = ?
		`, id).Scan(&p.ID, &p.DisplayName, &coverFaceID, &createdAt, &updatedAt)
		if scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return verr.New(verr.KindNotFound, "person not found")
			}
			return scanErr
		}
		if coverFaceID.Valid {
			v := coverFaceID.Int64
			p.CoverFaceID = &v
		}
		p.CreatedAt = parseOrZero(createdAt)
		p.UpdatedAt = parseOrZero(updatedAt)
		return nil
	})
	return p, err
}

func (s *Store) ListPersons(ctx context.Context) ([]Person, error) {
	var out []Person
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT id, display_name, cover_face_id, created_at, updated_at FROM persons ORDER BY id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Person
			var coverFaceID sql.NullInt64
			var createdAt, updatedAt string
			if err := rows.Scan(&p.ID, &p.DisplayName, &coverFaceID, &createdAt, &updatedAt); err != nil {
				return err
			}
			if coverFaceID.Valid {
				v := coverFaceID.Int64
				p.CoverFaceID = &v
			}
			p.CreatedAt = parseOrZero(createdAt)
			p.UpdatedAt = parseOrZero(updatedAt)
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) RenamePerson(ctx context.Context, id int64, name string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE persons SET display_name = ?, updated_at = ? WHERE id = ?`, name, nowRFC3339(), id)
		return err
	})
}

func (s *Store) ListFacesForMedia(ctx context.Context, mediaID int64) ([]Face, error) {
	var out []Face
	err := s.withReadLock(func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, media_id, x, y, w, h, score, embedding, person_id FROM faces WHERE media_id = ?
		`, mediaID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f Face
			var emb []byte
			var personID sql.NullInt64
			if err := rows.Scan(&f.ID, &f.MediaID, &f.X, &f.Y, &f.W, &f.H, &f.Score, &emb, &personID); err != nil {
				return err
			}
			f.Embedding = decodeFloat32s(emb)
			if personID.Valid {
				v := personID.Int64
				f.PersonID = &v
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	return out, err
}
