package ai

import "testing"

func TestTokenizeTextBracketsWithStartAndEndMarkers(t *testing.T) {
	ids := TokenizeText("a dog on a beach")
	if ids[0] != clipTokenStart {
		t.Fatalf("expected the first id to be the start marker, got %d", ids[0])
	}
	if len(ids) != ClipMaxTokens {
		t.Fatalf("expected a fixed-length %d token sequence, got %d", ClipMaxTokens, len(ids))
	}
	foundEnd := false
	for _, id := range ids[1:] {
		if id == clipTokenEnd {
			foundEnd = true
			break
		}
	}
	if !foundEnd {
		t.Fatal("expected the end marker to appear after the tokenized words")
	}
}

func TestTokenizeTextIsDeterministic(t *testing.T) {
	a := TokenizeText("sunset over the ocean")
	b := TokenizeText("sunset over the ocean")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical queries to tokenize identically, diverged at index %d: %d != %d", i, a[i], b[i])
		}
	}
}

func TestTokenizeTextTruncatesLongQueries(t *testing.T) {
	words := ""
	for i := 0; i < ClipMaxTokens*2; i++ {
		words += "word "
	}
	ids := TokenizeText(words)
	if len(ids) != ClipMaxTokens {
		t.Fatalf("expected truncation to the fixed token length, got %d", len(ids))
	}
}

func TestCosineSimOfIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosineSim(v, v); got < 0.999 || got > 1.001 {
		t.Fatalf("expected cosine similarity of a vector with itself to be ~1, got %v", got)
	}
}

func TestCosineSimOfOrthogonalVectorsIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := cosineSim(a, b); got < -0.001 || got > 0.001 {
		t.Fatalf("expected cosine similarity of orthogonal vectors to be ~0, got %v", got)
	}
}

func TestCosineSimRejectsMismatchedLengths(t *testing.T) {
	if got := cosineSim([]float32{1, 2}, []float32{1}); got != -2 {
		t.Fatalf("expected a sentinel -2 for mismatched lengths, got %v", got)
	}
}

func TestSemanticSearchReturnsTopKByScore(t *testing.T) {
	query := []float32{1, 0}
	candidates := map[int64][]float32{
		1: {1, 0},    // identical
		2: {0, 1},    // orthogonal
		3: {0.9, 0.1}, // close
	}
	results := SemanticSearch(query, candidates, 2)
	if len(results) != 2 {
		t.Fatalf("expected top 2 results, got %d", len(results))
	}
	if results[0].MediaID != 1 {
		t.Fatalf("expected the identical vector to rank first, got media %d", results[0].MediaID)
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("expected results sorted by descending score, got %+v", results)
	}
}

func TestSemanticSearchReturnsAllWhenTopKIsZero(t *testing.T) {
	candidates := map[int64][]float32{1: {1, 0}, 2: {0, 1}}
	results := SemanticSearch([]float32{1, 0}, candidates, 0)
	if len(results) != len(candidates) {
		t.Fatalf("expected all candidates returned when topK<=0, got %d", len(results))
	}
}
