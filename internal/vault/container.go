package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// Magic identifies an at-rest encrypted container.
const (
	containerMagic   = "WBENC1"
	containerVersion = 0x01

	DefaultChunkSize = 1 << 20 // 1 MiB
	MaxChunkSize     = 8 << 20 // 8 MiB

	baseNonceLen = 12
	gcmTagLen    = 16
)

// EncryptStream writes r's content to w as a WBENC1 container sealed under
// key, splitting plaintext into chunkSize pieces (the last may be shorter).
// chunkSize <= 0 selects DefaultChunkSize.
func EncryptStream(w io.Writer, r io.Reader, key []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxChunkSize {
		return verr.New(verr.KindInvalidInput, "chunk size exceeds 8 MiB")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	baseNonce := make([]byte, baseNonceLen)
	if _, err := rand.Read(baseNonce); err != nil {
		return err
	}

	if _, err := io.WriteString(w, containerMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{containerVersion}); err != nil {
		return err
	}
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(chunkSize))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(baseNonce); err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	var chunkIndex uint32
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if err := writeChunk(w, gcm, baseNonce, chunkIndex, buf[:n]); err != nil {
				return err
			}
			chunkIndex++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			if n == 0 && chunkIndex == 0 {
				// Empty plaintext still produces one (empty) sealed chunk so
				// decrypt(encrypt("")) round-trips to "" rather than EOF.
				if err := writeChunk(w, gcm, baseNonce, chunkIndex, nil); err != nil {
					return err
				}
			}
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func writeChunk(w io.Writer, gcm cipher.AEAD, baseNonce []byte, chunkIndex uint32, plain []byte) error {
	nonce := chunkNonce(baseNonce, chunkIndex)
	aad := chunkAAD(chunkIndex)
	ct := gcm.Seal(nil, nonce, plain, aad)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ct)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(ct)
	return err
}

func chunkNonce(baseNonce []byte, chunkIndex uint32) []byte {
	nonce := make([]byte, baseNonceLen)
	copy(nonce, baseNonce[:8])
	binary.LittleEndian.PutUint32(nonce[8:], chunkIndex)
	return nonce
}

func chunkAAD(chunkIndex uint32) []byte {
	var aad [4]byte
	binary.LittleEndian.PutUint32(aad[:], chunkIndex)
	return aad[:]
}

// DecryptStream reverses EncryptStream. Returns an Integrity-kind error if
// the header is malformed or any chunk fails AEAD verification.
func DecryptStream(w io.Writer, r io.Reader, key []byte) error {
	var header [6 + 1 + 4 + baseNonceLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return verr.Wrap(verr.KindIntegrity, "container truncated", err)
	}
	if string(header[:6]) != containerMagic {
		return verr.New(verr.KindIntegrity, "bad container magic")
	}
	version := header[6]
	if version != containerVersion {
		return verr.New(verr.KindIntegrity, fmt.Sprintf("unsupported container version %d", version))
	}
	chunkSize := binary.LittleEndian.Uint32(header[7:11])
	if chunkSize < 1 || chunkSize > MaxChunkSize {
		return verr.New(verr.KindIntegrity, "chunk size out of range")
	}
	baseNonce := append([]byte(nil), header[11:11+baseNonceLen]...)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	var lenBuf [4]byte
	var chunkIndex uint32
	for {
		_, err := io.ReadFull(r, lenBuf[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return verr.Wrap(verr.KindIntegrity, "truncated chunk length", err)
		}
		ctLen := binary.LittleEndian.Uint32(lenBuf[:])
		if ctLen < gcmTagLen || int64(ctLen) > int64(chunkSize)+gcmTagLen {
			return verr.New(verr.KindIntegrity, "implausible chunk length")
		}
		ct := make([]byte, ctLen)
		if _, err := io.ReadFull(r, ct); err != nil {
			return verr.Wrap(verr.KindIntegrity, "truncated chunk body", err)
		}
		nonce := chunkNonce(baseNonce, chunkIndex)
		aad := chunkAAD(chunkIndex)
		pt, err := gcm.Open(nil, nonce, ct, aad)
		if err != nil {
			return verr.New(verr.KindIntegrity, "chunk failed to decrypt")
		}
		if len(pt) > 0 {
			if _, err := w.Write(pt); err != nil {
				return err
			}
		}
		chunkIndex++
	}
}

// IsEncryptedFile peeks the first bytes of path and reports whether they
// match the WBENC1 magic, without reading the rest of the file.
func IsEncryptedFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	buf := make([]byte, len(containerMagic))
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return n == len(containerMagic) && string(buf) == containerMagic, nil
}

// DecryptIfNeeded copies src to dst verbatim if it is not a WBENC1
// container, else decrypts it with key. A nil key is only valid when src
// turns out to be plaintext.
func DecryptIfNeeded(dst io.Writer, src io.ReadSeeker, key []byte) error {
	buf := make([]byte, len(containerMagic))
	n, err := io.ReadFull(src, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if n == len(containerMagic) && string(buf) == containerMagic {
		if key == nil {
			return verr.New(verr.KindVaultLocked, "key required to decrypt container")
		}
		return DecryptStream(dst, src, key)
	}
	_, err = io.Copy(dst, src)
	return err
}
