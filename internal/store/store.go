// Package store adapts an on-disk maildir tree for the rest of the
// client. Received mail lives in the standard new/cur/tmp triple;
// drafts, outbox, sent and friends are flat folders of .eml files.
package store

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/emersion/go-maildir"
	"github.com/pkg/errors"
)

// Well-known folders under the maildir root.
const (
	FolderNew       = "new"
	FolderCur       = "cur"
	FolderDrafts    = "drafts"
	FolderOutbox    = "outbox"
	FolderSent      = "sent"
	FolderTemplates = "templates"
	FolderTrash     = "trash"
)

var (
	// ErrNoSuchItem indicates a list index or key that matches nothing.
	ErrNoSuchItem = errors.New("no such message")
)

// Store is the single writer for one maildir tree. Operations are
// invoked strictly sequentially; no internal locking is needed.
type Store struct {
	root string
}

// New returns a Store rooted at the given maildir path.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the maildir root path.
func (s *Store) Root() string {
	return s.root
}

// Path returns the absolute path of a folder under the root.
func (s *Store) Path(folder string) string {
	return filepath.Join(s.root, folder)
}

// Init creates the maildir triple and the flat working folders.
func (s *Store) Init() error {
	if err := maildir.Dir(s.root).Init(); err != nil {
		return errors.Wrap(err, "initializing maildir")
	}
	for _, folder := range []string{FolderDrafts, FolderOutbox, FolderSent, FolderTemplates, FolderTrash} {
		if err := os.MkdirAll(s.Path(folder), 0o700); err != nil {
			return errors.Wrapf(err, "creating %s", folder)
		}
	}
	return nil
}

// CheckNew moves newly delivered messages from new/ to cur/ and returns
// how many arrived.
func (s *Store) CheckNew() (int, error) {
	msgs, err := maildir.Dir(s.root).Unseen()
	if err != nil {
		return 0, errors.Wrap(err, "scanning new mail")
	}
	return len(msgs), nil
}

// Items lists the messages in a folder, oldest first, ordered by Date
// header with file mtime as fallback. Ordering is stable so that list
// indexes stay meaningful across a scan-then-act sequence.
func (s *Store) Items(folder string) ([]*Item, error) {
	dir := s.Path(folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var items []*Item
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		items = append(items, &Item{
			Path:   filepath.Join(dir, entry.Name()),
			Folder: folder,
		})
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Date().Before(items[b].Date())
	})
	return items, nil
}

// Item returns the n-th message (1-based, list order) of a folder.
func (s *Store) Item(folder string, n int) (*Item, error) {
	items, err := s.Items(folder)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(items) {
		return nil, errors.Wrapf(ErrNoSuchItem, "message %d of %d", n, len(items))
	}
	return items[n-1], nil
}

// Move relocates an item into another folder, creating the folder if
// needed. The item's path is updated to the new storage key.
func (s *Store) Move(item *Item, folder string) error {
	target := s.Path(folder)
	if err := os.MkdirAll(target, 0o700); err != nil {
		return err
	}
	dest := filepath.Join(target, item.Key())
	if err := os.Rename(item.Path, dest); err != nil {
		return errors.Wrapf(err, "moving %s to %s", item.Key(), folder)
	}
	item.Path = dest
	item.Folder = folder
	return nil
}

// MoveFile moves an arbitrary message file into a folder, creating the
// folder if needed, and returns the new path.
func (s *Store) MoveFile(path, folder string) (string, error) {
	target := s.Path(folder)
	if err := os.MkdirAll(target, 0o700); err != nil {
		return "", err
	}
	dest := filepath.Join(target, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", errors.Wrapf(err, "moving %s to %s", filepath.Base(path), folder)
	}
	return dest, nil
}

// Delete removes the item's file.
func (s *Store) Delete(item *Item) error {
	return os.Remove(item.Path)
}

// Write persists raw message bytes under a folder, creating the folder
// if needed, and returns the written path.
func (s *Store) Write(folder, name string, data []byte) (string, error) {
	dir := s.Path(folder)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
