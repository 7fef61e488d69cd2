// Package vault manages the master encryption key's lifecycle and provides
// the streaming WBENC1 at-rest container format layered uniformly over
// blobs and thumbnails.
package vault

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ronimuliawan/Wanderer/internal/store"
	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// State is the key-lifecycle state derived from the persisted bundle plus
// whatever key material currently lives in process memory.
type State string

const (
	StateUnset     State = "unset"
	StateUnencrypted State = "unencrypted"
	StateLocked    State = "locked"
	StateUnlocked  State = "unlocked"
)

// Vault holds the in-memory master key behind a mutex; every component that
// needs to encrypt or decrypt acquires the key briefly via WithKey and
// drops it again before doing any long-running I/O.
type Vault struct {
	store *store.Store

	mu        sync.Mutex
	mode      Mode
	masterKey []byte // nil unless Encrypted/Unlocked
	bundle    *bundle
	loaded    bool
}

func New(s *store.Store) *Vault {
	return &Vault{store: s}
}

func (v *Vault) load(ctx context.Context) error {
	if v.loaded {
		return nil
	}
	modeStr := v.store.GetConfigDefault(ctx, configKeyMode, string(ModeUnset))
	v.mode = Mode(modeStr)
	if v.mode == ModeEncrypted {
		raw, err := v.store.GetConfig(ctx, configKeyBundle)
		if err != nil {
			return verr.Wrap(verr.KindStorage, "vault bundle missing for encrypted mode", err)
		}
		b, err := unmarshalBundle(raw)
		if err != nil {
			return verr.Wrap(verr.KindStorage, "vault bundle corrupt", err)
		}
		v.bundle = &b
	}
	v.loaded = true
	return nil
}

// State reports the current lifecycle state. The persisted mode and bundle
// are read from the store on first use; later calls answer from memory.
func (v *Vault) State(ctx context.Context) (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.load(ctx); err != nil {
		return "", err
	}
	switch v.mode {
	case ModeUnset:
		return StateUnset, nil
	case ModeUnencrypted:
		return StateUnencrypted, nil
	case ModeEncrypted:
		if v.masterKey != nil {
			return StateUnlocked, nil
		}
		return StateLocked, nil
	default:
		return StateUnset, nil
	}
}

// InitializeUnencrypted transitions Unset -> Unencrypted. It is terminal:
// encryption can never be turned on afterward.
func (v *Vault) InitializeUnencrypted(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.load(ctx); err != nil {
		return err
	}
	if v.mode != ModeUnset {
		return verr.New(verr.KindVaultInitializedConflict, "vault already initialized")
	}
	if err := v.store.SetSecurityConfig(ctx, configKeyMode, string(ModeUnencrypted)); err != nil {
		return err
	}
	v.mode = ModeUnencrypted
	return nil
}

// InitializeEncrypted transitions Unset -> Encrypted/Unlocked, generating a
// fresh master key wrapped by passphrase and by a freshly generated
// recovery key. The recovery key is returned exactly once; it is never
// persisted in recoverable form, only as a PHC verifier plus its own wrap.
func (v *Vault) InitializeEncrypted(ctx context.Context, passphrase string) (recoveryKey string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.load(ctx); err != nil {
		return "", err
	}
	if v.mode != ModeUnset {
		return "", verr.New(verr.KindVaultInitializedConflict, "vault already initialized")
	}

	masterKey := make([]byte, masterKeyLen)
	if _, err := rand.Read(masterKey); err != nil {
		return "", err
	}
	passphraseWrap, err := sealMasterKey(masterKey, passphrase)
	if err != nil {
		return "", err
	}
	rawRecovery, formatted, err := generateRecoveryKey()
	if err != nil {
		return "", err
	}
	recoveryWrap, err := sealMasterKey(masterKey, string(rawRecovery))
	if err != nil {
		return "", err
	}
	verifier, err := recoveryVerifier(rawRecovery)
	if err != nil {
		return "", err
	}

	b := bundle{
		Mode:             ModeEncrypted,
		KeyID:            uuid.NewString(),
		PassphraseWrap:   passphraseWrap,
		RecoveryWrap:     recoveryWrap,
		RecoveryVerifier: verifier,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := b.marshal()
	if err != nil {
		return "", err
	}
	if err := v.store.SetSecurityConfig(ctx, configKeyBundle, raw); err != nil {
		return "", err
	}
	if err := v.store.SetSecurityConfig(ctx, configKeyMode, string(ModeEncrypted)); err != nil {
		return "", err
	}

	v.mode = ModeEncrypted
	v.bundle = &b
	v.masterKey = masterKey
	return formatted, nil
}

// Unlock transitions Encrypted/Locked -> Encrypted/Unlocked by verifying
// the passphrase wrap's AEAD tag.
func (v *Vault) Unlock(ctx context.Context, passphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.load(ctx); err != nil {
		return err
	}
	if v.mode != ModeEncrypted {
		return verr.New(verr.KindNotInitialized, "vault is not in encrypted mode")
	}
	if v.bundle == nil {
		return verr.New(verr.KindStorage, "vault bundle not loaded")
	}
	key, err := openMasterKey(v.bundle.PassphraseWrap, passphrase)
	if err != nil {
		return err
	}
	v.masterKey = key
	return nil
}

// Lock zeroes the in-memory master key.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.masterKey != nil {
		zero(v.masterKey)
		v.masterKey = nil
	}
}

// RecoverAndRewrap verifies the recovery key against its PHC verifier,
// unwraps the master key with it, then rewraps under a new passphrase.
func (v *Vault) RecoverAndRewrap(ctx context.Context, recoveryKey, newPassphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.load(ctx); err != nil {
		return err
	}
	if v.mode != ModeEncrypted || v.bundle == nil {
		return verr.New(verr.KindNotInitialized, "vault is not in encrypted mode")
	}
	raw := normalizeRecoveryKey(recoveryKey)
	if raw == nil || !verifyRecoveryKey(v.bundle.RecoveryVerifier, raw) {
		return verr.New(verr.KindInvalidRecoveryKey, "recovery key does not match")
	}
	masterKey, err := openMasterKey(v.bundle.RecoveryWrap, string(raw))
	if err != nil {
		return verr.New(verr.KindInvalidRecoveryKey, "recovery key failed to unwrap master key")
	}
	newWrap, err := sealMasterKey(masterKey, newPassphrase)
	if err != nil {
		return err
	}
	updated := *v.bundle
	updated.PassphraseWrap = newWrap
	rawJSON, err := updated.marshal()
	if err != nil {
		return err
	}
	if err := v.store.SetSecurityConfig(ctx, configKeyBundle, rawJSON); err != nil {
		return err
	}
	v.bundle = &updated
	v.masterKey = masterKey
	return nil
}

// RegenerateRecovery mints a new recovery key for an encrypted vault after
// unwrapping the master key with currentPassphrase, returning it exactly
// once. The vault need not be unlocked, and its lock state is unchanged.
func (v *Vault) RegenerateRecovery(ctx context.Context, currentPassphrase string) (recoveryKey string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.load(ctx); err != nil {
		return "", err
	}
	if v.mode != ModeEncrypted || v.bundle == nil {
		return "", verr.New(verr.KindNotInitialized, "vault is not in encrypted mode")
	}
	masterKey, err := openMasterKey(v.bundle.PassphraseWrap, currentPassphrase)
	if err != nil {
		return "", err
	}
	rawRecovery, formatted, err := generateRecoveryKey()
	if err != nil {
		return "", err
	}
	recoveryWrap, err := sealMasterKey(masterKey, string(rawRecovery))
	if err != nil {
		return "", err
	}
	verifier, err := recoveryVerifier(rawRecovery)
	if err != nil {
		return "", err
	}
	updated := *v.bundle
	updated.RecoveryWrap = recoveryWrap
	updated.RecoveryVerifier = verifier
	raw, err := updated.marshal()
	if err != nil {
		return "", err
	}
	if err := v.store.SetSecurityConfig(ctx, configKeyBundle, raw); err != nil {
		return "", err
	}
	v.bundle = &updated
	return formatted, nil
}

// IsEncrypted reports whether the vault was ever initialized in encrypted
// mode, regardless of its current lock state.
func (v *Vault) IsEncrypted(ctx context.Context) bool {
	st, err := v.State(ctx)
	if err != nil {
		return false
	}
	return st == StateLocked || st == StateUnlocked
}

// WithKey acquires the master key just long enough to run fn, matching the
// "acquire briefly, release before long I/O" discipline. It
// returns KindVaultLocked if the vault is encrypted but not unlocked.
func (v *Vault) WithKey(ctx context.Context, fn func(key []byte) error) error {
	v.mu.Lock()
	if err := v.load(ctx); err != nil {
		v.mu.Unlock()
		return err
	}
	if v.mode == ModeEncrypted && v.masterKey == nil {
		v.mu.Unlock()
		return verr.New(verr.KindVaultLocked, "vault is locked")
	}
	key := v.masterKey
	v.mu.Unlock()
	if err := fn(key); err != nil {
		return fmt.Errorf("vault operation: %w", err)
	}
	return nil
}
