package mediautil

import (
	"net/http"
	"strings"
)

// DetectMIME sniffs the content type from a small header buffer (already
// read by the caller) falling back to extension-based guesses for RAW
// camera formats the stdlib sniffer doesn't know about.
func DetectMIME(filename string, header []byte) string {
	if mt := http.DetectContentType(header); mt != "application/octet-stream" {
		return mt
	}
	ext := strings.ToLower(filename[strings.LastIndex(filename, ".")+1:])
	switch ext {
	case "cr2", "cr3", "nef", "arw", "dng", "orf", "rw2", "raf":
		return "image/x-" + ext
	case "heic", "heif":
		return "image/heic"
	case "mov":
		return "video/quicktime"
	case "mp4", "m4v":
		return "video/mp4"
	case "webm":
		return "video/webm"
	}
	return "application/octet-stream"
}

func IsImage(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}

func IsVideo(mime string) bool {
	return strings.HasPrefix(mime, "video/")
}

func IsRaw(mime string) bool {
	switch mime {
	case "image/x-cr2", "image/x-cr3", "image/x-nef", "image/x-arw",
		"image/x-dng", "image/x-orf", "image/x-rw2", "image/x-raf":
		return true
	}
	return false
}
