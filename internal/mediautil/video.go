package mediautil

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

const videoThumbnailSeekTime = "00:00:01"

// VideoThumbnail invokes an external frame-extractor (ffmpeg) at t=1s and
// returns a JPEG frame. If seeking fails it retries without a seek offset
// (useful for very short clips); if ffmpeg is absent from PATH it returns
// ErrNoThumbnail rather than failing ingestion.
func VideoThumbnail(ctx context.Context, videoPath string) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, ErrNoThumbnail
	}
	if out, err := runFFmpegFrame(ctx, videoPath, videoThumbnailSeekTime); err == nil {
		return out, nil
	}
	out, err := runFFmpegFrame(ctx, videoPath, "")
	if err != nil {
		return nil, verr.Wrap(verr.KindExternalBackend, "video frame extraction failed", err)
	}
	return out, nil
}

// ErrNoThumbnail signals "no thumbnail available", not an ingest failure.
var ErrNoThumbnail = verr.New(verr.KindNotFound, "no thumbnail available")

func runFFmpegFrame(ctx context.Context, videoPath, seek string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	args := []string{"-y"}
	if seek != "" {
		args = append(args, "-ss", seek)
	}
	args = append(args, "-i", videoPath, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "pipe:1")

	// #nosec G204 -- videoPath is a locally discovered filesystem path, not user-supplied shell input.
	cmd := exec.CommandContext(runCtx, "ffmpeg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	if stdout.Len() == 0 {
		return nil, verr.New(verr.KindExternalBackend, "ffmpeg produced no output: "+stderr.String())
	}
	return stdout.Bytes(), nil
}
