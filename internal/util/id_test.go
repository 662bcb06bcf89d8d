package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	plain := NewID("")
	if _, err := uuid.Parse(plain); err != nil {
		t.Fatalf("expected bare uuid, got %q: %v", plain, err)
	}

	prefixed := NewID("local")
	if !strings.HasPrefix(prefixed, "local_") {
		t.Fatalf("expected local_ prefix, got %q", prefixed)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(prefixed, "local_")); err != nil {
		t.Fatalf("expected uuid after prefix, got %q: %v", prefixed, err)
	}
	if NewID("local") == prefixed {
		t.Fatal("expected unique ids")
	}
}
