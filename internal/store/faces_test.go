package store

import (
	"context"
	"testing"
	"time"
)

func insertTestMedia(t *testing.T, s *Store, path string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := s.AddMedia(ctx, path, path+"-hash", "", time.Now().UTC(), Metadata{}, "")
	if err != nil {
		t.Fatalf("add media %s: %v", path, err)
	}
	return id
}

func TestStoreFaceEmbeddingClustersSimilarFacesTogether(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	media1 := insertTestMedia(t, s, "/p1.jpg")
	media2 := insertTestMedia(t, s, "/p2.jpg")

	ids1, err := s.ReplaceFacesForMedia(ctx, media1, []FaceDetection{{X: 0.1, Y: 0.1, W: 0.2, H: 0.2, Score: 0.9}})
	if err != nil {
		t.Fatalf("replace faces 1: %v", err)
	}
	ids2, err := s.ReplaceFacesForMedia(ctx, media2, []FaceDetection{{X: 0.1, Y: 0.1, W: 0.2, H: 0.2, Score: 0.9}})
	if err != nil {
		t.Fatalf("replace faces 2: %v", err)
	}

	embeddingA := unitVector(512, 0)
	person1, err := s.StoreFaceEmbedding(ctx, ids1[0], embeddingA)
	if err != nil {
		t.Fatalf("store embedding 1: %v", err)
	}

	// Nearly identical embedding (cosine similarity ~1.0): should join person1.
	embeddingB := unitVector(512, 0)
	embeddingB[1] = 0.001
	person2, err := s.StoreFaceEmbedding(ctx, ids2[0], embeddingB)
	if err != nil {
		t.Fatalf("store embedding 2: %v", err)
	}
	if person1 != person2 {
		t.Fatalf("expected near-identical embeddings to cluster into the same person, got %d and %d", person1, person2)
	}
}

func TestStoreFaceEmbeddingCreatesNewPersonBelowThreshold(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	media1 := insertTestMedia(t, s, "/p1.jpg")
	media2 := insertTestMedia(t, s, "/p2.jpg")

	ids1, err := s.ReplaceFacesForMedia(ctx, media1, []FaceDetection{{X: 0, Y: 0, W: 1, H: 1, Score: 0.9}})
	if err != nil {
		t.Fatalf("replace faces 1: %v", err)
	}
	ids2, err := s.ReplaceFacesForMedia(ctx, media2, []FaceDetection{{X: 0, Y: 0, W: 1, H: 1, Score: 0.9}})
	if err != nil {
		t.Fatalf("replace faces 2: %v", err)
	}

	embeddingA := unitVector(512, 0)
	person1, err := s.StoreFaceEmbedding(ctx, ids1[0], embeddingA)
	if err != nil {
		t.Fatalf("store embedding 1: %v", err)
	}

	// Orthogonal embedding: cosine similarity 0.0, well below FaceClusterThreshold.
	embeddingB := unitVector(512, 1)
	person2, err := s.StoreFaceEmbedding(ctx, ids2[0], embeddingB)
	if err != nil {
		t.Fatalf("store embedding 2: %v", err)
	}
	if person1 == person2 {
		t.Fatal("expected a dissimilar embedding to start a new person")
	}

	persons, err := s.ListPersons(ctx)
	if err != nil {
		t.Fatalf("list persons: %v", err)
	}
	if len(persons) != 2 {
		t.Fatalf("expected 2 persons, got %d", len(persons))
	}
}

func TestReplaceFacesForMediaSwapsAtomically(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	media := insertTestMedia(t, s, "/group.jpg")

	if _, err := s.ReplaceFacesForMedia(ctx, media, []FaceDetection{
		{X: 0, Y: 0, W: 0.1, H: 0.1, Score: 0.8},
		{X: 0.5, Y: 0.5, W: 0.1, H: 0.1, Score: 0.7},
	}); err != nil {
		t.Fatalf("initial replace: %v", err)
	}
	faces, err := s.ListFacesForMedia(ctx, media)
	if err != nil {
		t.Fatalf("list faces: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces after first detection, got %d", len(faces))
	}

	if _, err := s.ReplaceFacesForMedia(ctx, media, []FaceDetection{
		{X: 0.2, Y: 0.2, W: 0.1, H: 0.1, Score: 0.95},
	}); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	faces, err = s.ListFacesForMedia(ctx, media)
	if err != nil {
		t.Fatalf("list faces: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("expected exactly 1 face after re-detection, got %d", len(faces))
	}
}

func unitVector(dim, hotIndex int) []float32 {
	v := make([]float32, dim)
	v[hotIndex] = 1
	return v
}
