package store

import (
	"bytes"
	"testing"
	"time"
)

func TestMemStoreRoundTrip(t *testing.T) {
	s := NewMemStore(nil)
	defer s.Close()

	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	content := []byte("# hello\n")
	if err := s.Write("notes/a.md", content, mtime); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Read("notes/a.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Read = %q, want %q", got, content)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List returned %d entries, want 1", len(entries))
	}
	if entries[0].Path != "notes/a.md" {
		t.Fatalf("entry path = %q, want notes/a.md", entries[0].Path)
	}
	if !entries[0].Mtime.Equal(mtime) {
		t.Fatalf("entry mtime = %v, want %v", entries[0].Mtime, mtime)
	}
	if entries[0].Size != int64(len(content)) {
		t.Fatalf("entry size = %d, want %d", entries[0].Size, len(content))
	}
}

func TestMemStoreEvents(t *testing.T) {
	s := NewMemStore(nil)
	defer s.Close()

	if err := s.Write("a.md", []byte("x"), time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case ev := <-s.Events():
		if ev.Op != OpWrite || ev.Path != "a.md" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("no event after Write")
	}

	if err := s.Remove("a.md"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	select {
	case ev := <-s.Events():
		if ev.Op != OpRemove || ev.Path != "a.md" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("no event after Remove")
	}
}

func TestMemStoreRemoveMissing(t *testing.T) {
	s := NewMemStore(nil)
	defer s.Close()
	if err := s.Remove("gone.md"); err != nil {
		t.Fatalf("Remove of missing file: %v", err)
	}
}

func TestMemStoreIgnorePatterns(t *testing.T) {
	s := NewMemStore([]string{"*.tmp"})
	defer s.Close()

	if err := s.Write("keep.md", []byte("x"), time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write("skip.tmp", []byte("y"), time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "keep.md" {
		t.Fatalf("unexpected listing %+v", entries)
	}
}
