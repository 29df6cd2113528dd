package lavaflow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSessionStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := newSessionStore(dir)
	if err != nil {
		t.Fatalf("newSessionStore() error = %v", err)
	}
	if got := store.Get("main"); got != "" {
		t.Errorf("Get() on empty store = %q, want empty", got)
	}

	if err := store.Set("main", "sess-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set("backup", "sess-2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// A fresh store sees what the first one wrote.
	reloaded, err := newSessionStore(dir)
	if err != nil {
		t.Fatalf("newSessionStore() reload error = %v", err)
	}
	if got := reloaded.Get("main"); got != "sess-1" {
		t.Errorf("reloaded Get(main) = %q, want sess-1", got)
	}
	if got := reloaded.Get("backup"); got != "sess-2" {
		t.Errorf("reloaded Get(backup) = %q, want sess-2", got)
	}

	if err := reloaded.Delete("main"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := reloaded.Get("main"); got != "" {
		t.Errorf("Get() after delete = %q, want empty", got)
	}
}

func TestSessionStore_DeleteMissingIsNoop(t *testing.T) {
	store, err := newSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("newSessionStore() error = %v", err)
	}
	if err := store.Delete("never-set"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestSessionStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sessionIds.json"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newSessionStore(dir); !IsCode(err, ErrInvalidConfig) {
		t.Fatalf("newSessionStore() error = %v, want %s", err, ErrInvalidConfig)
	}
}

func TestMemorySessionStore(t *testing.T) {
	store := newMemorySessionStore()
	if err := store.Set("main", "sess"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := store.Get("main"); got != "sess" {
		t.Errorf("Get() = %q, want sess", got)
	}
	if err := store.Delete("main"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := store.Get("main"); got != "" {
		t.Errorf("Get() after delete = %q, want empty", got)
	}
}
