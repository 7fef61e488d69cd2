//go:build !windows

package keystore

import (
	"github.com/ronimuliawan/Wanderer/internal/verr"
)

func platformProtect(_ []byte) ([]byte, error) {
	return nil, verr.New(verr.KindExternalBackend, "credential keystore unsupported on this platform")
}

func platformUnprotect(_ []byte) ([]byte, error) {
	return nil, verr.New(verr.KindExternalBackend, "credential keystore unsupported on this platform")
}
