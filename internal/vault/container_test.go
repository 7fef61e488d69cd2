package vault

import (
	"bytes"
	"crypto/rand"
	"os"
	"testing"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestEncryptDecryptStreamRoundTrip(t *testing.T) {
	key := testKey(t)
	plain := bytes.Repeat([]byte("the quick brown fox "), 1000)

	var sealed bytes.Buffer
	if err := EncryptStream(&sealed, bytes.NewReader(plain), key, 128); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	var out bytes.Buffer
	if err := DecryptStream(&out, bytes.NewReader(sealed.Bytes()), key); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plain) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", out.Len(), len(plain))
	}
}

func TestEncryptDecryptStreamEmptyInput(t *testing.T) {
	key := testKey(t)
	var sealed bytes.Buffer
	if err := EncryptStream(&sealed, bytes.NewReader(nil), key, DefaultChunkSize); err != nil {
		t.Fatalf("encrypt empty: %v", err)
	}
	var out bytes.Buffer
	if err := DecryptStream(&out, bytes.NewReader(sealed.Bytes()), key); err != nil {
		t.Fatalf("decrypt empty: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty output, got %d bytes", out.Len())
	}
}

func TestDecryptStreamWrongKeyFailsIntegrity(t *testing.T) {
	key := testKey(t)
	wrongKey := testKey(t)
	plain := []byte("sensitive family photo bytes")

	var sealed bytes.Buffer
	if err := EncryptStream(&sealed, bytes.NewReader(plain), key, DefaultChunkSize); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	var out bytes.Buffer
	err := DecryptStream(&out, bytes.NewReader(sealed.Bytes()), wrongKey)
	if err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
	if !verr.Is(err, verr.KindIntegrity) {
		t.Fatalf("expected KindIntegrity, got %v", err)
	}
}

func TestDecryptStreamRejectsTruncatedContainer(t *testing.T) {
	key := testKey(t)
	var sealed bytes.Buffer
	if err := EncryptStream(&sealed, bytes.NewReader([]byte("hello world")), key, DefaultChunkSize); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	truncated := sealed.Bytes()[:len(sealed.Bytes())-4]

	var out bytes.Buffer
	err := DecryptStream(&out, bytes.NewReader(truncated), key)
	if err == nil {
		t.Fatal("expected truncated container to fail")
	}
	if !verr.Is(err, verr.KindIntegrity) {
		t.Fatalf("expected KindIntegrity, got %v", err)
	}
}

func TestIsEncryptedFileDetectsMagic(t *testing.T) {
	key := testKey(t)
	dir := t.TempDir()
	path := dir + "/blob.wbenc"

	var sealed bytes.Buffer
	if err := EncryptStream(&sealed, bytes.NewReader([]byte("x")), key, DefaultChunkSize); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := os.WriteFile(path, sealed.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	enc, err := IsEncryptedFile(path)
	if err != nil {
		t.Fatalf("IsEncryptedFile: %v", err)
	}
	if !enc {
		t.Fatal("expected file to be detected as encrypted")
	}

	plainPath := dir + "/plain.jpg"
	if err := os.WriteFile(plainPath, []byte("\xff\xd8\xff\xe0 not really a jpeg but not wbenc either"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	enc, err = IsEncryptedFile(plainPath)
	if err != nil {
		t.Fatalf("IsEncryptedFile: %v", err)
	}
	if enc {
		t.Fatal("expected plaintext file to not be detected as encrypted")
	}
}

func TestDecryptIfNeededPassesThroughPlaintext(t *testing.T) {
	plain := []byte("plain bytes, vault never armed")
	var out bytes.Buffer
	if err := DecryptIfNeeded(&out, bytes.NewReader(plain), nil); err != nil {
		t.Fatalf("DecryptIfNeeded: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plain) {
		t.Fatal("expected plaintext passthrough to be unmodified")
	}
}

func TestDecryptIfNeededRequiresKeyForContainer(t *testing.T) {
	key := testKey(t)
	var sealed bytes.Buffer
	if err := EncryptStream(&sealed, bytes.NewReader([]byte("locked")), key, DefaultChunkSize); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	var out bytes.Buffer
	err := DecryptIfNeeded(&out, bytes.NewReader(sealed.Bytes()), nil)
	if err == nil {
		t.Fatal("expected nil key against an encrypted container to fail")
	}
	if !verr.Is(err, verr.KindVaultLocked) {
		t.Fatalf("expected KindVaultLocked, got %v", err)
	}
}
