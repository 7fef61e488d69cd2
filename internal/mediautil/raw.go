package mediautil

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

const (
	rawScanSkipBytes  = 1024
	rawPreviewMinSize = 10 * 1024
	rawPreviewMaxSize = 50 * 1024 * 1024
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// ExtractEmbeddedPreview pulls a plausible JPEG preview out of a RAW
// camera file: first via the EXIF thumbnail pointer, then by scanning the
// body for a JPEG marker sequence.
func ExtractEmbeddedPreview(data []byte) ([]byte, error) {
	if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
		if thumb, err := x.JpegThumbnail(); err == nil && len(thumb) > 0 {
			return thumb, nil
		}
	}
	if preview, ok := scanForJPEGPreview(data); ok {
		return preview, nil
	}
	return nil, verr.New(verr.KindNotFound, "no embedded preview found")
}

func scanForJPEGPreview(data []byte) ([]byte, bool) {
	if len(data) <= rawScanSkipBytes {
		return nil, false
	}
	body := data[rawScanSkipBytes:]
	start := bytes.Index(body, jpegSOI)
	for start >= 0 {
		end := bytes.Index(body[start+2:], jpegEOI)
		if end < 0 {
			return nil, false
		}
		end = start + 2 + end + 2 // include the EOI marker itself
		length := end - start
		if length >= rawPreviewMinSize && length <= rawPreviewMaxSize {
			return body[start:end], true
		}
		next := bytes.Index(body[start+2:], jpegSOI)
		if next < 0 {
			return nil, false
		}
		start = start + 2 + next
	}
	return nil, false
}
