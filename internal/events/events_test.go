package events

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestNewProgressComputesPercentRateAndETA(t *testing.T) {
	p := NewProgress(50, 200, 5)
	if p.Percent != 25 {
		t.Errorf("expected 25%% complete, got %v", p.Percent)
	}
	if p.BytesPerSec != 10 {
		t.Errorf("expected 10 bytes/sec, got %v", p.BytesPerSec)
	}
	if p.ETASeconds != 15 {
		t.Errorf("expected 15s remaining at 10 bytes/sec for 150 remaining bytes, got %v", p.ETASeconds)
	}
}

func TestNewProgressHandlesZeroElapsedAndZeroTotal(t *testing.T) {
	p := NewProgress(0, 0, 0)
	if p.Percent != 0 || p.BytesPerSec != 0 || p.ETASeconds != 0 {
		t.Fatalf("expected all-zero fields for a zero-total, zero-elapsed case, got %+v", p)
	}
}

func TestNewProgressLeavesETAZeroOnceComplete(t *testing.T) {
	p := NewProgress(200, 200, 5)
	if p.Percent != 100 {
		t.Errorf("expected 100%% complete, got %v", p.Percent)
	}
	if p.ETASeconds != 0 {
		t.Errorf("expected zero ETA once total == sent, got %v", p.ETASeconds)
	}
}

func TestNopSinkImplementsSinkWithoutPanicking(t *testing.T) {
	var s Sink = NopSink{}
	s.MediaAdded(1, "/a")
	s.UploadProgress(1, Progress{})
	s.UploadCompleted(1, "blob")
	s.UploadRateLimited(1, 5)
	s.UploadFailed(1, "boom")
}

func TestLoggingSinkWritesExpectedFields(t *testing.T) {
	var buf bytes.Buffer
	sink := LoggingSink{Log: log.New(&buf, "", 0)}

	sink.MediaAdded(42, "/backup/photo.jpg")
	sink.UploadCompleted(42, "blob-123")
	sink.UploadRateLimited(42, 30)
	sink.UploadFailed(42, "connection reset")

	out := buf.String()
	for _, want := range []string{"media_id=42", "path=/backup/photo.jpg", "blob_id=blob-123", "wait_s=30", `error="connection reset"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got:\n%s", want, out)
		}
	}
}
