package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// Argon2id parameters: m=64MiB, t=3, p=1.
const (
	argonMemoryKiB = 64 * 1024
	argonTime      = 3
	argonThreads   = 1
	argonKeyLen    = 32
	saltLen        = 16
	masterKeyLen   = 32
	recoveryKeyLen = 20
)

// wrap is one Argon2id-derived, AES-256-GCM-sealed copy of the master key.
type wrap struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func deriveKey(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)
}

func sealMasterKey(masterKey []byte, secret string) (wrap, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return wrap{}, err
	}
	derived := deriveKey(secret, salt)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return wrap{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return wrap{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return wrap{}, err
	}
	ct := gcm.Seal(nil, nonce, masterKey, nil)
	return wrap{Salt: salt, Nonce: nonce, Ciphertext: ct}, nil
}

func openMasterKey(w wrap, secret string) ([]byte, error) {
	derived := deriveKey(secret, w.Salt)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, w.Nonce, w.Ciphertext, nil)
	if err != nil {
		return nil, verr.New(verr.KindInvalidPassphrase, "unwrap failed")
	}
	return pt, nil
}

// generateRecoveryKey produces a 20-byte random key rendered as
// group-separated uppercase hex: 40 digits in eight groups of five, e.g.
// "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE-FFFFF-GGGGG-HHHHH".
func generateRecoveryKey() (raw []byte, formatted string, err error) {
	raw = make([]byte, recoveryKeyLen)
	if _, err = rand.Read(raw); err != nil {
		return nil, "", err
	}
	h := strings.ToUpper(hex.EncodeToString(raw))
	var b strings.Builder
	for i := 0; i < len(h); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + 5
		if end > len(h) {
			end = len(h)
		}
		b.WriteString(h[i:end])
	}
	return raw, b.String(), nil
}

func normalizeRecoveryKey(formatted string) []byte {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(formatted), "-", ""))
	raw, err := hex.DecodeString(compact)
	if err != nil {
		return nil
	}
	return raw
}

// recoveryVerifier returns an Argon2id PHC-style string so a recovery key
// can be checked for validity before attempting the (expensive) unwrap.
func recoveryVerifier(raw []byte) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey(raw, salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemoryKiB, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

func verifyRecoveryKey(verifier string, raw []byte) bool {
	parts := strings.Split(verifier, "$")
	if len(parts) != 6 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey(raw, salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// zero overwrites a key buffer in place; called on lock so the master key
// does not linger in process memory.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
