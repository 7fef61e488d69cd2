package mediautil

import "testing"

func TestDetectMIMESniffsKnownContainerTypes(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	if got := DetectMIME("photo.png", png); got != "image/png" {
		t.Fatalf("expected image/png, got %s", got)
	}
}

// opaqueHeader is binary content that http.DetectContentType cannot sniff
// into anything more specific than application/octet-stream, forcing
// DetectMIME to fall through to its extension-based guesses.
var opaqueHeader = []byte{0x00, 0x01, 0x02, 0x03, 0xDE, 0xAD, 0xBE, 0xEF}

func TestDetectMIMEFallsBackToExtensionForRawFormats(t *testing.T) {
	cases := map[string]string{
		"shot.cr2":   "image/x-cr2",
		"shot.nef":   "image/x-nef",
		"shot.arw":   "image/x-arw",
		"clip.mov":   "video/quicktime",
		"clip.webm":  "video/webm",
		"photo.heic": "image/heic",
	}
	for filename, want := range cases {
		got := DetectMIME(filename, opaqueHeader)
		if got != want {
			t.Errorf("%s: expected %s, got %s", filename, want, got)
		}
	}
}

func TestDetectMIMEUnknownExtensionFallsBackToOctetStream(t *testing.T) {
	if got := DetectMIME("mystery.xyz", opaqueHeader); got != "application/octet-stream" {
		t.Fatalf("expected application/octet-stream, got %s", got)
	}
}

func TestIsImageIsVideoIsRaw(t *testing.T) {
	if !IsImage("image/jpeg") || IsImage("video/mp4") {
		t.Fatal("IsImage classified incorrectly")
	}
	if !IsVideo("video/mp4") || IsVideo("image/jpeg") {
		t.Fatal("IsVideo classified incorrectly")
	}
	if !IsRaw("image/x-dng") || IsRaw("image/jpeg") {
		t.Fatal("IsRaw classified incorrectly")
	}
}
