//go:build windows

package keystore

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modcrypt32           = windows.NewLazySystemDLL("crypt32.dll")
	modkernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procCryptProtectData = modcrypt32.NewProc("CryptProtectData")
	procCryptUnprotect   = modcrypt32.NewProc("CryptUnprotectData")
	procLocalFree        = modkernel32.NewProc("LocalFree")
)

type dataBlob struct {
	cbData uint32
	pbData *byte
}

func newBlob(b []byte) *dataBlob {
	if len(b) == 0 {
		return &dataBlob{}
	}
	return &dataBlob{cbData: uint32(len(b)), pbData: &b[0]}
}

func (b *dataBlob) bytes() []byte {
	if b.cbData == 0 {
		return nil
	}
	return append([]byte(nil), unsafe.Slice(b.pbData, int(b.cbData))...)
}

// platformProtect wraps plaintext with CryptProtectData, scoped to the
// current user (no explicit entropy, no description).
func platformProtect(plaintext []byte) ([]byte, error) {
	in := newBlob(plaintext)
	var out dataBlob
	ret, _, err := procCryptProtectData.Call(
		uintptr(unsafe.Pointer(in)),
		0, 0, 0, 0, 0,
		uintptr(unsafe.Pointer(&out)),
	)
	if ret == 0 {
		return nil, err
	}
	defer procLocalFree.Call(uintptr(unsafe.Pointer(out.pbData)))
	return out.bytes(), nil
}

func platformUnprotect(sealed []byte) ([]byte, error) {
	in := newBlob(sealed)
	var out dataBlob
	ret, _, err := procCryptUnprotect.Call(
		uintptr(unsafe.Pointer(in)),
		0, 0, 0, 0, 0,
		uintptr(unsafe.Pointer(&out)),
	)
	if ret == 0 {
		return nil, err
	}
	defer procLocalFree.Call(uintptr(unsafe.Pointer(out.pbData)))
	return out.bytes(), nil
}
