package id

import (
	"strings"
	"testing"
)

func TestNewIDShape(t *testing.T) {
	got, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(got) != 26 {
		t.Fatalf("id length = %d, want 26", len(got))
	}
	if got != strings.ToLower(got) {
		t.Fatalf("id %q should be lowercase", got)
	}
	if strings.Contains(got, "=") {
		t.Fatalf("id %q should not contain padding", got)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		got, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if _, dup := seen[got]; dup {
			t.Fatalf("duplicate id %q", got)
		}
		seen[got] = struct{}{}
	}
}
