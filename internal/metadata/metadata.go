// Package metadata extracts EXIF date/GPS/camera fields with a
// DateTimeOriginal -> DateTime -> file mtime -> ctime fallback chain.
package metadata

import (
	"bytes"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Result holds everything the Watcher and Cloud Sync Worker persist onto a
// MediaItem at ingest time.
type Result struct {
	DateTaken   time.Time
	Latitude    *float64
	Longitude   *float64
	CameraMake  string
	CameraModel string
}

const exifDateLayout = "2006:01:02 15:04:05"

// Extract parses EXIF out of data (the full file, or at least its header)
// and falls back to filesystem timestamps when EXIF is absent or
// incomplete. modTime and changeTime are the caller's os.Stat-derived
// fallbacks, in that preference order.
func Extract(data []byte, modTime, changeTime time.Time) Result {
	var res Result

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		res.DateTaken = fallbackTime(modTime, changeTime)
		return res
	}

	res.DateTaken = dateTaken(x, modTime, changeTime)

	if lat, lon, err := x.LatLong(); err == nil {
		res.Latitude = &lat
		res.Longitude = &lon
	}

	res.CameraMake = stripQuotes(tagString(x, exif.Make))
	res.CameraModel = stripQuotes(tagString(x, exif.Model))

	return res
}

func dateTaken(x *exif.Exif, modTime, changeTime time.Time) time.Time {
	if s := tagString(x, exif.DateTimeOriginal); s != "" {
		if t, err := time.Parse(exifDateLayout, s); err == nil {
			return t
		}
	}
	if s := tagString(x, exif.DateTime); s != "" {
		if t, err := time.Parse(exifDateLayout, s); err == nil {
			return t
		}
	}
	return fallbackTime(modTime, changeTime)
}

func fallbackTime(modTime, changeTime time.Time) time.Time {
	if !modTime.IsZero() {
		return modTime
	}
	return changeTime
}

func tagString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

func stripQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
