package compose

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/pkg/errors"

	"github.com/wren-mail/wren/internal/config"
)

// Operation names the kind of composition being derived.
type Operation int

const (
	OpNew Operation = iota
	OpReply
	OpReplyAll
	OpForward
)

func (op Operation) String() string {
	switch op {
	case OpNew:
		return "new"
	case OpReply:
		return "reply"
	case OpReplyAll:
		return "reply-all"
	case OpForward:
		return "forward"
	}
	return "unknown"
}

// ErrNoFrom indicates no usable From identity could be resolved. Fatal
// for send, tolerated for save and queue.
var ErrNoFrom = errors.New("no usable From address")

// Original is the message being replied to or forwarded: its headers,
// its best-effort text body, and any attachments worth carrying over.
type Original struct {
	Header      mail.Header
	Text        string
	Attachments []Attachment
}

// ParseOriginal reads a raw message into an Original. Malformed parts
// are skipped rather than rejected.
func ParseOriginal(r io.Reader) (*Original, error) {
	mr, err := mail.CreateReader(r)
	if mr == nil {
		return nil, errors.Wrap(err, "parsing original message")
	}

	orig := &Original{Header: mr.Header}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			break
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			if orig.Text != "" {
				continue
			}
			if t, _, err := h.ContentType(); err == nil && strings.HasPrefix(t, "text/") {
				body, err := io.ReadAll(part.Body)
				if err == nil {
					orig.Text = string(body)
				}
			}
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			if err != nil || name == "" {
				continue
			}
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			contentType := "application/octet-stream"
			if t, _, err := h.ContentType(); err == nil {
				contentType = t
			}
			orig.Attachments = append(orig.Attachments, Attachment{
				Name:        name,
				ContentType: contentType,
				Data:        data,
			})
		}
	}
	return orig, nil
}

// DeriveOptions tweak header derivation.
type DeriveOptions struct {
	// KeepAttachments carries the original's attachments onto a reply.
	KeepAttachments bool
}

// Derive computes the From/To/Cc/Subject set and seeded body for an
// operation against an original message. For OpNew the original may be
// nil. The result is a Draft in need of editing; it has no state of its
// own.
func Derive(op Operation, orig *Original, cfg config.Config, opts DeriveOptions) (*Draft, error) {
	if op != OpNew && orig == nil {
		return nil, errors.Errorf("%s requires an original message", op)
	}

	d := &Draft{}
	from := resolveFrom(op, orig, cfg)

	switch op {
	case OpNew:
		d.Header.Set("Subject", "")
		d.Header.Set("To", "")

	case OpReply, OpReplyAll:
		subject, _ := orig.Header.Subject()
		d.Header.SetSubject(prefixSubject("Re:", subject))

		to := replyTargets(orig.Header)
		if len(to) > 0 {
			d.Header.SetAddressList("To", to)
		} else {
			d.Header.Set("To", "")
		}
		if op == OpReplyAll {
			cc := replyAllCc(orig.Header, bareAddress(from), addressSet(to))
			if len(cc) > 0 {
				d.Header.SetAddressList("Cc", cc)
			}
		}
		setThreading(&d.Header, orig.Header)
		d.Body = quoteBody(orig)
		if opts.KeepAttachments {
			d.Attachments = orig.Attachments
		}

	case OpForward:
		subject, _ := orig.Header.Subject()
		d.Header.SetSubject(prefixSubject("Fwd:", subject))
		d.Header.Set("To", "")
		setThreading(&d.Header, orig.Header)
		d.Body = forwardBody(orig)
	}

	// Added last so the field lands first in the written header block.
	d.Header.Set("From", from)
	return d, nil
}

// resolveFrom picks the configured identity addressed by the original
// message, falling back to default_from. Returns "" when nothing
// resolves; callers decide whether that is fatal.
func resolveFrom(op Operation, orig *Original, cfg config.Config) string {
	if op != OpNew && orig != nil {
		for _, key := range []string{"To", "Cc", "Bcc"} {
			list, err := orig.Header.AddressList(key)
			if err != nil {
				continue
			}
			for _, addr := range list {
				if id, ok := cfg.Identities[addr.Address]; ok {
					return identityFrom(id)
				}
			}
		}
	}
	if id, ok := cfg.Identities[cfg.DefaultFrom]; ok {
		return identityFrom(id)
	}
	return cfg.DefaultFrom
}

func identityFrom(id config.Identity) string {
	if strings.TrimSpace(id.From) != "" {
		return id.From
	}
	return id.Address
}

// prefixSubject adds prefix unless the subject already starts with it,
// compared case-insensitively.
func prefixSubject(prefix, subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(prefix)) {
		return trimmed
	}
	if trimmed == "" {
		return prefix + " "
	}
	return prefix + " " + trimmed
}

// replyTargets prefers Reply-To over From.
func replyTargets(h mail.Header) []*mail.Address {
	if list, err := h.AddressList("Reply-To"); err == nil && len(list) > 0 {
		return list
	}
	if list, err := h.AddressList("From"); err == nil && len(list) > 0 {
		return list
	}
	return nil
}

// replyAllCc merges the original To and Cc into one Cc list, dropping
// the replying identity and anything already in To. Insertion order is
// preserved and duplicates removed.
func replyAllCc(h mail.Header, self string, exclude map[string]bool) []*mail.Address {
	var merged []*mail.Address
	seen := map[string]bool{}
	for _, key := range []string{"To", "Cc"} {
		list, err := h.AddressList(key)
		if err != nil {
			continue
		}
		for _, addr := range list {
			lower := strings.ToLower(addr.Address)
			if lower == strings.ToLower(self) || exclude[lower] || seen[lower] {
				continue
			}
			seen[lower] = true
			merged = append(merged, addr)
		}
	}
	return merged
}

func addressSet(list []*mail.Address) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, addr := range list {
		set[strings.ToLower(addr.Address)] = true
	}
	return set
}

func bareAddress(display string) string {
	if addr, err := mail.ParseAddress(display); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(display)
}

func setThreading(h *mail.Header, orig mail.Header) {
	id, err := orig.MessageID()
	if err != nil || id == "" {
		return
	}
	refs, _ := orig.MsgIDList("References")
	h.SetMsgIDList("References", append(refs, id))
	h.SetMsgIDList("In-Reply-To", []string{id})
}

const quoteDateLayout = "Mon, January 2, 2006 at 15:04:05 -0700"

func senderDisplay(h mail.Header) string {
	list, err := h.AddressList("From")
	if err != nil || len(list) == 0 {
		return "Unknown"
	}
	if list[0].Name != "" {
		return list[0].Name
	}
	return list[0].Address
}

// quoteBody seeds a reply body with the attribution line and the
// original text prefixed line by line.
func quoteBody(orig *Original) string {
	date := "a day in the past"
	if d, err := orig.Header.Date(); err == nil && !d.IsZero() {
		date = d.Format(quoteDateLayout)
	}
	text := orig.Text
	if text == "" {
		return fmt.Sprintf("On %s, %s wrote:\n> <A message with no text>", date, senderDisplay(orig.Header))
	}
	quoted := "> " + strings.ReplaceAll(strings.TrimRight(text, "\n"), "\n", "\n> ")
	return fmt.Sprintf("On %s, %s wrote:\n%s", date, senderDisplay(orig.Header), quoted)
}

// forwardBody preserves the original message as a quoted block.
func forwardBody(orig *Original) string {
	var b strings.Builder
	b.WriteString("---------- Forwarded Message ----------\n")
	fmt.Fprintf(&b, "From: %s\n", headerText(orig.Header, "From"))
	if d, err := orig.Header.Date(); err == nil && !d.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", d.Format(quoteDateLayout))
	}
	subject, _ := orig.Header.Subject()
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	for _, key := range []string{"To", "Cc", "Bcc"} {
		if v := headerText(orig.Header, key); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, v)
		}
	}
	b.WriteString("\n")
	b.WriteString(orig.Text)
	return b.String()
}

func headerText(h mail.Header, key string) string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return h.Get(key)
	}
	parts := make([]string, len(list))
	for i, addr := range list {
		parts[i] = addr.String()
	}
	return strings.Join(parts, ", ")
}
