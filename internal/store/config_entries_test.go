package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

func TestSetConfigRejectsSecurityPrefixedKeys(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "config_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	err = s.SetConfig(ctx, "security_vault_mode", "armed")
	if !verr.Is(err, verr.KindInvalidInput) {
		t.Fatalf("expected KindInvalidInput, got %v", err)
	}
}

func TestSetConfigRoundTripsOrdinaryKeys(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "config_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if err := s.SetConfig(ctx, "ai_faces_enabled", "true"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	got, err := s.GetConfig(ctx, "ai_faces_enabled")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got != "true" {
		t.Fatalf("expected %q, got %q", "true", got)
	}
}

func TestSetConfigOverwritesExistingValue(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "config_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if err := s.SetConfig(ctx, "ai_tags_enabled", "false"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := s.SetConfig(ctx, "ai_tags_enabled", "true"); err != nil {
		t.Fatalf("overwrite config: %v", err)
	}
	got, err := s.GetConfig(ctx, "ai_tags_enabled")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got != "true" {
		t.Fatalf("expected overwritten value %q, got %q", "true", got)
	}
}

func TestSetSecurityConfigRequiresSecurityPrefix(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "config_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	err = s.SetSecurityConfig(ctx, "ai_faces_enabled", "true")
	if !verr.Is(err, verr.KindInvalidInput) {
		t.Fatalf("expected KindInvalidInput, got %v", err)
	}
}

func TestSetSecurityConfigWritesSecurityPrefixedKeys(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "config_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if err := s.SetSecurityConfig(ctx, "security_vault_mode", "armed"); err != nil {
		t.Fatalf("set security config: %v", err)
	}
	got, err := s.GetConfig(ctx, "security_vault_mode")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got != "armed" {
		t.Fatalf("expected %q, got %q", "armed", got)
	}
}

func TestGetConfigReturnsNotFoundForUnsetKey(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "config_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	_, err = s.GetConfig(ctx, "never_set")
	if !verr.Is(err, verr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestGetConfigDefaultFallsBackWhenUnset(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "config_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if got := s.GetConfigDefault(ctx, "never_set", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback value, got %q", got)
	}

	if err := s.SetConfig(ctx, "never_set", "actual"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if got := s.GetConfigDefault(ctx, "never_set", "fallback"); got != "actual" {
		t.Fatalf("expected stored value to take precedence, got %q", got)
	}
}
