// Package keystore protects opaque third-party API credential blobs using
// the host OS's credential store. Only Windows DPAPI is
// wired; every other platform must fail explicitly rather than fall back to
// plaintext storage.
package keystore

import "encoding/base64"

// Protect seals plaintext behind the platform keystore and returns a
// base64-encoded opaque blob suitable for storing under a config key.
func Protect(plaintext []byte) (string, error) {
	sealed, err := platformProtect(plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Unprotect reverses Protect.
func Unprotect(blob string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, err
	}
	return platformUnprotect(sealed)
}
