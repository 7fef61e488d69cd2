package verr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewProducesMatchingKind(t *testing.T) {
	err := New(KindNotFound, "missing item")
	if !Is(err, KindNotFound) {
		t.Fatalf("expected Is to match KindNotFound, got %v", err)
	}
	if Is(err, KindIO) {
		t.Fatal("expected Is not to match an unrelated kind")
	}
}

func TestWrapReturnsNilForNilCause(t *testing.T) {
	if err := Wrap(KindStorage, "should not happen", nil); err != nil {
		t.Fatalf("expected Wrap(nil) to return nil, got %v", err)
	}
}

func TestWrapPreservesCauseForUnwrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindIO, "write failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected the wrapped cause to be reachable via errors.Is")
	}
}

func TestAsExtractsKindedErrorThroughFmtWrap(t *testing.T) {
	base := New(KindIntegrity, "checksum mismatch")
	wrapped := fmt.Errorf("ingest failed: %w", base)

	e, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find the *Error through an fmt.Errorf %w wrap")
	}
	if e.Kind != KindIntegrity {
		t.Fatalf("expected KindIntegrity, got %s", e.Kind)
	}
}

func TestIsReturnsFalseForPlainErrors(t *testing.T) {
	if Is(errors.New("plain"), KindNotFound) {
		t.Fatal("expected Is to return false for an error with no Kind at all")
	}
}

func TestRateLimitedCarriesWaitSecondsAndFlag(t *testing.T) {
	err := RateLimited(30, "FLOOD_WAIT")
	e, ok := As(err)
	if !ok {
		t.Fatal("expected RateLimited to produce an extractable *Error")
	}
	if e.Kind != KindExternalBackend {
		t.Fatalf("expected KindExternalBackend, got %s", e.Kind)
	}
	if !e.RateLimited || e.WaitSeconds != 30 {
		t.Fatalf("expected RateLimited=true and WaitSeconds=30, got %v/%d", e.RateLimited, e.WaitSeconds)
	}
}

func TestErrorStringIncludesKindAndCauseWhenPresent(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindExternalBackend, "upload failed", cause)
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected a non-empty error string")
	}
	if !strings.Contains(msg, string(KindExternalBackend)) || !strings.Contains(msg, "boom") {
		t.Fatalf("expected the error string to include the kind and the cause, got %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected the cause to remain reachable")
	}
}
