package mediautil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

func TestStreamDigestIsDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	a, err := StreamDigest(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	b, err := StreamDigest(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("digest again: %v", err)
	}
	if a != b {
		t.Fatalf("expected the same bytes to hash identically, got %s and %s", a, b)
	}
}

func TestStreamDigestDiffersOnSingleByteChange(t *testing.T) {
	a, err := StreamDigest(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("digest a: %v", err)
	}
	b, err := StreamDigest(strings.NewReader("hello worlD"))
	if err != nil {
		t.Fatalf("digest b: %v", err)
	}
	if a == b {
		t.Fatal("expected a single differing byte to produce a different digest")
	}
}

func TestStreamDigestRejectsEmptyInput(t *testing.T) {
	_, err := StreamDigest(bytes.NewReader(nil))
	if err == nil {
		t.Fatal("expected an error hashing a zero-byte source")
	}
	if !verr.Is(err, verr.KindInvalidInput) {
		t.Fatalf("expected KindInvalidInput, got %v", err)
	}
}

func TestStreamDigestHandlesInputLargerThanOneBuffer(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), digestReadBufSize) // several buffers' worth
	got, err := StreamDigest(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(got) != 64 { // 32 bytes of Blake2b-256, hex-encoded
		t.Fatalf("expected a 64-char hex digest, got length %d", len(got))
	}
}
