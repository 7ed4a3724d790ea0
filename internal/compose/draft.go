package compose

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/pkg/errors"

	"github.com/wren-mail/wren/internal/config"
)

// Draft is an in-progress outgoing message: an editable header block
// and a plain-text body that may contain Attachment: directives. A
// Draft carries no lifecycle state of its own; the lifecycle engine
// owns that.
type Draft struct {
	Header mail.Header
	Body   string

	// Attachments carried over from an original message (reply with
	// --keep-attachments). Transient: the engine materializes them as
	// files plus body directives before the draft is first saved.
	Attachments []Attachment
}

// ErrAmbiguousDraft is returned when more than one saved draft is
// eligible for resume and the caller must disambiguate.
var ErrAmbiguousDraft = errors.New("multiple resumable drafts")

// NewDraft derives a fresh draft for an operation and applies the
// header template: From, To, Cc, Subject and X-CommonMark in stable
// order, blank-line separated from the seeded body.
func NewDraft(op Operation, orig *Original, cfg config.Config, opts DeriveOptions) (*Draft, error) {
	d, err := Derive(op, orig, cfg, opts)
	if err != nil {
		return nil, err
	}

	id, ok := cfg.Identity(bareAddress(d.Header.Get("From")))
	if !ok || id.CommonMark == nil || *id.CommonMark {
		d.Header.Set("X-CommonMark", "true")
	}
	d.Header = canonicalHeader(d.Header)
	return d, nil
}

// NewDraftFromTemplate parses a template file's content as a draft,
// filling an empty From from the default identity.
func NewDraftFromTemplate(content string, cfg config.Config) (*Draft, error) {
	d, err := parseDraft(strings.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "parsing template")
	}
	if strings.TrimSpace(d.Header.Get("From")) == "" {
		if id, ok := cfg.Identity(cfg.DefaultFrom); ok {
			d.Header.Set("From", identityFrom(id))
		} else {
			d.Header.Set("From", cfg.DefaultFrom)
		}
	}
	d.Header = canonicalHeader(d.Header)
	return d, nil
}

// canonicalHeader rebuilds the header so the written block reads
// From, To, Cc, Subject, threading fields, X-CommonMark in that
// order, regardless of derivation order. Unknown fields follow.
func canonicalHeader(h mail.Header) mail.Header {
	var out mail.Header
	known := []string{"From", "To", "Cc", "Bcc", "Subject", "In-Reply-To", "References", "X-CommonMark"}
	isKnown := map[string]bool{}
	for _, key := range known {
		isKnown[strings.ToLower(key)] = true
	}

	var extra [][2]string
	fields := h.Fields()
	for fields.Next() {
		if !isKnown[strings.ToLower(fields.Key())] {
			extra = append(extra, [2]string{fields.Key(), fields.Value()})
		}
	}
	for i := len(extra) - 1; i >= 0; i-- {
		out.Set(extra[i][0], extra[i][1])
	}
	for i := len(known) - 1; i >= 0; i-- {
		key := known[i]
		value := h.Get(key)
		if value == "" && key != "From" && key != "To" && key != "Subject" {
			continue
		}
		out.Set(key, value)
	}
	return out
}

// Marshal renders the draft as a raw RFC 2822-style file: header
// block, blank line, body.
func (d *Draft) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, d.Header.Header.Header); err != nil {
		return nil, errors.Wrap(err, "writing draft header")
	}
	buf.WriteString(d.Body)
	return buf.Bytes(), nil
}

// LoadDraft parses a previously saved raw draft file back into an
// editable draft.
func LoadDraft(path string) (*Draft, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseDraft(f)
}

func parseDraft(r io.Reader) (*Draft, error) {
	br := bufio.NewReader(r)
	th, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	return &Draft{
		Header: mail.Header{Header: message.Header{Header: th}},
		Body:   string(body),
	}, nil
}

// ListDrafts returns the resumable draft files in a directory, newest
// modification time first; names break ties, so the order is
// deterministic.
func ListDrafts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".eml") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{
			path:  filepath.Join(dir, entry.Name()),
			mtime: info.ModTime(),
		})
	}
	sort.SliceStable(found, func(a, b int) bool {
		if !found[a].mtime.Equal(found[b].mtime) {
			return found[a].mtime.After(found[b].mtime)
		}
		return found[a].path < found[b].path
	})

	paths := make([]string, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	return paths, nil
}

var nonAlpha = regexp.MustCompile(`[^A-Za-z]+`)

// DraftName builds the on-disk name for a draft: timestamp plus
// hyphenated subject, .eml suffixed.
func DraftName(subject string, now time.Time) string {
	sanitized := strings.Join(strings.Fields(nonAlpha.ReplaceAllString(subject, " ")), "-")
	return now.Format("20060102150405") + "-" + sanitized + ".eml"
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Subjectify reduces a subject to letters and digits separated by
// hyphens, for use in file names.
func Subjectify(subject string) string {
	return nonAlnum.ReplaceAllString(subject, "-")
}

// Template is a reusable starting point for new mail.
type Template struct {
	Name    string
	Content string
}

// ListTemplates reads every file in the templates directory. Unreadable
// entries are skipped.
func ListTemplates(dir string) ([]Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var templates []Template
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		templates = append(templates, Template{Name: entry.Name(), Content: string(content)})
	}
	return templates, nil
}
