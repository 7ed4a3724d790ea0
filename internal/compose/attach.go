package compose

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/wren-mail/wren/internal/config"
)

// Attachment is a single file reference extracted from a draft body.
type Attachment struct {
	Path        string
	Name        string
	Inline      bool
	ContentID   string
	ContentType string
	Data        []byte
}

// AttachmentError records one attachment that could not be resolved.
// Assembly continues without it.
type AttachmentError struct {
	Path string
	Err  error
}

func (e AttachmentError) Error() string {
	return fmt.Sprintf("attachment %s: %v", e.Path, e.Err)
}

const attachmentPrefix = "Attachment:"

// ResolveAttachments scans the body for Attachment: directives, removes
// each matched line, and resolves the referenced files in source order.
//
// A directive has the form
//
//	Attachment: <path>[; inline=true][; name="display.png"]
//
// and may appear anywhere in the body, not only a leading header block.
// Missing or unreadable files are dropped and reported; inline
// attachments whose content-ID is never referenced as cid:<id> in the
// remaining body are downgraded to regular attachments.
func ResolveAttachments(body string) (string, []Attachment, []AttachmentError) {
	var (
		kept []string
		atts []Attachment
		errs []AttachmentError
	)

	usedIDs := map[string]bool{}
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, attachmentPrefix) {
			kept = append(kept, line)
			continue
		}

		att, err := parseAttachmentDirective(strings.TrimPrefix(line, attachmentPrefix))
		if err != nil {
			errs = append(errs, AttachmentError{Path: strings.TrimSpace(line), Err: err})
			continue
		}

		data, err := os.ReadFile(att.Path)
		if err != nil {
			errs = append(errs, AttachmentError{Path: att.Path, Err: err})
			continue
		}
		att.Data = data

		if att.Inline {
			att.ContentID = att.Name
			if usedIDs[att.ContentID] {
				att.ContentID = uuid.NewString() + "." + att.Name
			}
			usedIDs[att.ContentID] = true
		}

		atts = append(atts, att)
	}

	clean := strings.Join(kept, "\n")

	// An inline attachment must be referenced somewhere in the body;
	// otherwise it is sent as a plain attachment instead.
	for i := range atts {
		if atts[i].Inline && !strings.Contains(clean, "cid:"+atts[i].ContentID) {
			atts[i].Inline = false
		}
	}

	return clean, atts, errs
}

func parseAttachmentDirective(value string) (Attachment, error) {
	parts := strings.Split(value, ";")
	path := config.ExpandHome(strings.TrimSpace(parts[0]))
	if path == "" {
		return Attachment{}, fmt.Errorf("empty attachment path")
	}

	att := Attachment{
		Path: path,
		Name: filepath.Base(path),
	}
	for _, extra := range parts[1:] {
		key, val, found := strings.Cut(extra, "=")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		switch key {
		case "inline":
			att.Inline = strings.EqualFold(val, "true")
		case "name", "filename":
			att.Name = strings.Trim(val, `"'`)
		}
	}

	att.ContentType = "application/octet-stream"
	if byExt := mime.TypeByExtension(filepath.Ext(att.Name)); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			att.ContentType = mediaType
		}
	}
	return att, nil
}
