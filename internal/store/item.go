package store

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// Item is a single message file somewhere in the maildir tree. The path
// is the storage key; it is stable until the store moves or deletes the
// item.
type Item struct {
	Path   string
	Folder string

	header *mail.Header
}

// Key returns the item's file name within its folder.
func (i *Item) Key() string {
	return filepath.Base(i.Path)
}

// Header returns the item's parsed header block. The header is read once
// and cached; the body is not loaded.
func (i *Item) Header() (mail.Header, error) {
	if i.header != nil {
		return *i.header, nil
	}

	f, err := os.Open(i.Path)
	if err != nil {
		return mail.Header{}, err
	}
	defer f.Close()

	th, err := textproto.ReadHeader(bufio.NewReader(f))
	if err != nil {
		return mail.Header{}, err
	}
	h := mail.Header{Header: message.Header{Header: th}}
	i.header = &h
	return h, nil
}

// Raw returns the item's full raw bytes.
func (i *Item) Raw() ([]byte, error) {
	return os.ReadFile(i.Path)
}

// Entity parses the item into a MIME part tree. Unknown charsets are
// tolerated: the entity is still returned for best-effort access.
func (i *Item) Entity() (*message.Entity, error) {
	raw, err := i.Raw()
	if err != nil {
		return nil, err
	}
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}
	return e, nil
}

// Date returns the item's Date header, falling back to file mtime when
// the header is missing or malformed.
func (i *Item) Date() time.Time {
	if h, err := i.Header(); err == nil {
		if d, err := h.Date(); err == nil && !d.IsZero() {
			return d
		}
	}
	if fi, err := os.Stat(i.Path); err == nil {
		return fi.ModTime()
	}
	return time.Time{}
}
