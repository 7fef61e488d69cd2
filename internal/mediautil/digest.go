// Package mediautil provides the content-addressing and thumbnailing
// primitives shared by the Watcher and Cloud Sync Worker: streaming
// digests, perceptual hashing, and image/video thumbnail generation.
package mediautil

import (
	"encoding/hex"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

const digestReadBufSize = 256 * 1024

// StreamDigest hashes r with Blake2b-256 in fixed-size chunks so the
// caller never materializes a whole (possibly multi-gigabyte) file in
// memory. A zero-byte source is rejected.
func StreamDigest(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	buf := make([]byte, digestReadBufSize)
	var total int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, err := h.Write(buf[:n]); err != nil {
				return "", err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	if total == 0 {
		return "", verr.New(verr.KindInvalidInput, "refusing to hash a zero-byte file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
