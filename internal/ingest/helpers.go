package ingest

import (
	"bytes"
	"image"
	"io"

	"github.com/ronimuliawan/Wanderer/internal/vault"
)

// bytesReader adapts a byte slice to the io.Reader ImageThumbnail expects.
func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// decodeForHash decodes image bytes for the perceptual-hash pass; a
// decode failure simply yields no perceptual hash.
func decodeForHash(raw []byte) image.Image {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	return img
}

// vaultEncrypt seals thumbnail bytes into w using the default chunk size.
func vaultEncrypt(w io.Writer, plain []byte, key []byte) error {
	return vault.EncryptStream(w, bytes.NewReader(plain), key, vault.DefaultChunkSize)
}
