package client

import (
	"strings"
	"testing"
)

// TestSessionIDPersists verifies the id survives across loads and that
// ClearState forces a fresh one.
func TestSessionIDPersists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	first, err := LoadSessionID()
	if err != nil {
		t.Fatalf("LoadSessionID: %v", err)
	}
	if !strings.HasPrefix(first, "session-") {
		t.Errorf("id = %q, want session- prefix", first)
	}

	second, err := LoadSessionID()
	if err != nil {
		t.Fatalf("LoadSessionID: %v", err)
	}
	if second != first {
		t.Errorf("id changed across loads: %q -> %q", first, second)
	}

	if err := ClearState(); err != nil {
		t.Fatalf("ClearState: %v", err)
	}
	third, err := LoadSessionID()
	if err != nil {
		t.Fatalf("LoadSessionID: %v", err)
	}
	if third == first {
		t.Error("id survived ClearState")
	}

	// Clearing an already-clean state is fine.
	if err := ClearState(); err != nil {
		t.Errorf("second ClearState: %v", err)
	}
	if err := ClearState(); err != nil {
		t.Errorf("third ClearState: %v", err)
	}
}

// TestNewTabID verifies tab ids are unique per call.
func TestNewTabID(t *testing.T) {
	a, b := NewTabID(), NewTabID()
	if !strings.HasPrefix(a, "tab-") {
		t.Errorf("id = %q, want tab- prefix", a)
	}
	if a == b {
		t.Error("two tab ids collided")
	}
}
