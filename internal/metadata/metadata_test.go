package metadata

import (
	"testing"
	"time"
)

func TestExtractFallsBackToModTimeWhenNoEXIF(t *testing.T) {
	mod := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	change := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	res := Extract([]byte("not an image at all"), mod, change)
	if !res.DateTaken.Equal(mod) {
		t.Fatalf("expected DateTaken to fall back to modTime %v, got %v", mod, res.DateTaken)
	}
	if res.CameraMake != "" || res.CameraModel != "" {
		t.Fatalf("expected no camera fields without EXIF, got make=%q model=%q", res.CameraMake, res.CameraModel)
	}
}

func TestExtractFallsBackToChangeTimeWhenModTimeIsZero(t *testing.T) {
	change := time.Date(2025, 6, 15, 8, 30, 0, 0, time.UTC)
	res := Extract([]byte("no exif here"), time.Time{}, change)
	if !res.DateTaken.Equal(change) {
		t.Fatalf("expected DateTaken to fall back to changeTime %v, got %v", change, res.DateTaken)
	}
}

func TestStripQuotesTrimsSurroundingQuotesAndWhitespace(t *testing.T) {
	cases := map[string]string{
		`"Canon"`:    "Canon",
		` "Nikon" `:  "Nikon",
		"Sony":       "Sony",
		`""`:         "",
	}
	for in, want := range cases {
		if got := stripQuotes(in); got != want {
			t.Errorf("stripQuotes(%q): expected %q, got %q", in, want, got)
		}
	}
}
