//go:build windows

package ingest

import (
	"os"
	"time"
)

// Windows file info carries no POSIX ctime; mtime is the best available
// fallback.
func changeTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
