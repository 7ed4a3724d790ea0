package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitCreatesFolders(t *testing.T) {
	s := newStore(t)
	for _, folder := range []string{FolderNew, FolderCur, "tmp", FolderDrafts, FolderOutbox, FolderSent, FolderTemplates, FolderTrash} {
		info, err := os.Stat(s.Path(folder))
		if err != nil {
			t.Fatalf("expected folder %s: %v", folder, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", folder)
		}
	}
}

func TestItemsOrderedByDate(t *testing.T) {
	s := newStore(t)

	write := func(name, date string) {
		raw := "From: a@example.com\nDate: " + date + "\n\nbody\n"
		if _, err := s.Write(FolderCur, name, []byte(raw)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	write("b.eml", "Wed, 02 Jul 2026 10:00:00 +0000")
	write("a.eml", "Tue, 01 Jul 2026 10:00:00 +0000")

	items, err := s.Items(FolderCur)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Key() != "a.eml" || items[1].Key() != "b.eml" {
		t.Fatalf("wrong order: %s, %s", items[0].Key(), items[1].Key())
	}
}

func TestItemsDateFallsBackToMtime(t *testing.T) {
	s := newStore(t)
	path, err := s.Write(FolderCur, "nodate.eml", []byte("From: a@example.com\n\nbody\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	when := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	items, err := s.Items(FolderCur)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if got := items[0].Date(); !got.Equal(when) {
		t.Fatalf("expected mtime fallback %v, got %v", when, got)
	}
}

func TestItemOutOfRange(t *testing.T) {
	s := newStore(t)
	if _, err := s.Item(FolderCur, 1); !errors.Is(err, ErrNoSuchItem) {
		t.Fatalf("expected ErrNoSuchItem, got %v", err)
	}
}

func TestItemOneBased(t *testing.T) {
	s := newStore(t)
	if _, err := s.Write(FolderCur, "only.eml", []byte("Subject: one\n\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	item, err := s.Item(FolderCur, 1)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.Key() != "only.eml" {
		t.Fatalf("unexpected item %s", item.Key())
	}
	if _, err := s.Item(FolderCur, 0); !errors.Is(err, ErrNoSuchItem) {
		t.Fatalf("index 0 should be out of range")
	}
}

func TestMove(t *testing.T) {
	s := newStore(t)
	if _, err := s.Write(FolderCur, "m.eml", []byte("Subject: m\n\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	item, err := s.Item(FolderCur, 1)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}

	if err := s.Move(item, "archive"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if item.Folder != "archive" {
		t.Fatalf("folder not updated: %s", item.Folder)
	}
	if _, err := os.Stat(filepath.Join(s.Path("archive"), "m.eml")); err != nil {
		t.Fatalf("moved file missing: %v", err)
	}
	if remaining, _ := s.Items(FolderCur); len(remaining) != 0 {
		t.Fatalf("source folder should be empty")
	}
}

func TestMoveFile(t *testing.T) {
	s := newStore(t)
	path, err := s.Write(FolderDrafts, "d.eml", []byte("Subject: d\n\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	dest, err := s.MoveFile(path, FolderOutbox)
	if err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if filepath.Dir(dest) != s.Path(FolderOutbox) {
		t.Fatalf("unexpected destination %s", dest)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("source should be gone")
	}
}

func TestHeaderCached(t *testing.T) {
	s := newStore(t)
	if _, err := s.Write(FolderCur, "h.eml", []byte("Subject: cached\n\nbody\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	item, err := s.Item(FolderCur, 1)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}

	h, err := item.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	subject, _ := h.Subject()
	if subject != "cached" {
		t.Fatalf("unexpected subject %q", subject)
	}

	// A second read survives the file going away.
	if err := s.Delete(item); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := item.Header(); err != nil {
		t.Fatalf("cached header lost: %v", err)
	}
}
