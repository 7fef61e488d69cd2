// Package events defines the seam between the core engine and whatever UI
// bridge a host process wires in. Progress and rate-limit notifications
// flow through a generic sink interface rather than anything tied to a
// particular UI toolkit.
package events

import "log"

// Sink receives the handful of named events workers emit. Implementations
// must not block the calling worker for long; a host bridge that needs to
// fan these out further should buffer internally.
type Sink interface {
	MediaAdded(mediaID int64, filePath string)
	UploadProgress(mediaID int64, p Progress)
	UploadCompleted(mediaID int64, blobID string)
	UploadRateLimited(mediaID int64, waitSeconds int)
	UploadFailed(mediaID int64, errMsg string)
}

// Progress carries byte-accurate upload progress.
type Progress struct {
	BytesSent   int64
	TotalBytes  int64
	BytesPerSec float64
	ETASeconds  float64
	Percent     float64
}

// NewProgress computes the derived rate/ETA/percent fields from a raw byte
// count and elapsed duration in seconds.
func NewProgress(sent, total int64, elapsedSeconds float64) Progress {
	p := Progress{BytesSent: sent, TotalBytes: total}
	if total > 0 {
		p.Percent = 100 * float64(sent) / float64(total)
	}
	if elapsedSeconds > 0 {
		p.BytesPerSec = float64(sent) / elapsedSeconds
	}
	if p.BytesPerSec > 0 && total > sent {
		p.ETASeconds = float64(total-sent) / p.BytesPerSec
	}
	return p
}

// NopSink discards every event; useful where no UI bridge is attached.
type NopSink struct{}

func (NopSink) MediaAdded(int64, string)          {}
func (NopSink) UploadProgress(int64, Progress)    {}
func (NopSink) UploadCompleted(int64, string)     {}
func (NopSink) UploadRateLimited(int64, int)      {}
func (NopSink) UploadFailed(int64, string)        {}

// LoggingSink writes each event as a line through a shared *log.Logger;
// each worker wires its own logger with its own prefix.
type LoggingSink struct {
	Log *log.Logger
}

func (l LoggingSink) MediaAdded(mediaID int64, filePath string) {
	l.Log.Printf("media-added media_id=%d path=%s", mediaID, filePath)
}

func (l LoggingSink) UploadProgress(mediaID int64, p Progress) {
	l.Log.Printf("upload-progress media_id=%d percent=%.1f rate_bps=%.0f eta_s=%.0f", mediaID, p.Percent, p.BytesPerSec, p.ETASeconds)
}

func (l LoggingSink) UploadCompleted(mediaID int64, blobID string) {
	l.Log.Printf("upload-completed media_id=%d blob_id=%s", mediaID, blobID)
}

func (l LoggingSink) UploadRateLimited(mediaID int64, waitSeconds int) {
	l.Log.Printf("upload-rate-limited media_id=%d wait_s=%d", mediaID, waitSeconds)
}

func (l LoggingSink) UploadFailed(mediaID int64, errMsg string) {
	l.Log.Printf("upload-failed media_id=%d error=%q", mediaID, errMsg)
}
