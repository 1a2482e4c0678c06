package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEvidenceStore_SaveAndOpen(t *testing.T) {
	store, err := NewEvidenceStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewEvidenceStore: %v", err)
	}

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	blob := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	ref, err := store.Save(context.Background(), "sess-1", at, blob)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(ref, "sess-1"+string(filepath.Separator)) {
		t.Errorf("ref %q not scoped by session id", ref)
	}
	if !strings.Contains(ref, "20260314T093000") {
		t.Errorf("ref %q missing capture timestamp", ref)
	}

	got, err := store.Open(ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("round trip mismatch: got %v want %v", got, blob)
	}
}

func TestEvidenceStore_UniqueRefs(t *testing.T) {
	store, err := NewEvidenceStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewEvidenceStore: %v", err)
	}

	at := time.Now().UTC()
	a, err := store.Save(context.Background(), "sess-1", at, []byte("a"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := store.Save(context.Background(), "sess-1", at, []byte("b"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if a == b {
		t.Errorf("two saves at the same instant produced the same ref %q", a)
	}
}

func TestEvidenceStore_OpenRejectsEscapes(t *testing.T) {
	store, err := NewEvidenceStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewEvidenceStore: %v", err)
	}

	for _, ref := range []string{"../secrets.jpg", "/etc/passwd", "a/../../out.jpg"} {
		if _, err := store.Open(ref); err == nil {
			t.Errorf("Open(%q) succeeded, want error", ref)
		}
	}
}

func TestEvidenceStore_SaveCancelled(t *testing.T) {
	store, err := NewEvidenceStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewEvidenceStore: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Save(ctx, "sess-1", time.Now(), []byte("x")); err == nil {
		t.Error("Save with cancelled context succeeded, want error")
	}
}
