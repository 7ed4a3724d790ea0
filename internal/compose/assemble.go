package compose

import (
	"bytes"
	"io"
	"mime"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wren-mail/wren/internal/config"
)

// Assembled is a draft rendered down to wire form, ready to hand to a
// transport.
type Assembled struct {
	From       string   // bare envelope sender
	Recipients []string // bare To+Cc+Bcc envelope recipients
	Bytes      []byte

	// AttachmentErrors lists attachments that were dropped. The
	// message was still assembled without them.
	AttachmentErrors []AttachmentError
}

// Assemble builds the outgoing wire message for a draft: attachment
// directives resolved, body rendered to multipart/alternative when
// CommonMark is enabled, Date and Message-ID freshly generated.
// Repeated assembly of the same saved draft differs only in those two
// headers.
func Assemble(d *Draft, cfg config.Config, renderers []Renderer) (*Assembled, error) {
	wire := d.Header.Copy()

	body := d.Body
	if directives := headerAttachmentLines(&wire); directives != "" {
		body = directives + body
	}
	clean, atts, attErrs := ResolveAttachments(body)
	atts = append(atts, d.Attachments...)

	from := bareAddress(wire.Get("From"))
	enabled := commonMarkEnabled(wire, cfg, from)
	plain, html := RenderBody(clean, enabled, renderers)

	recipients := envelopeRecipients(wire)

	// Bcc recipients stay in the envelope but never on the wire.
	wire.Del("Bcc")
	wire.Del("X-CommonMark")
	wire.SetDate(time.Now())
	wire.SetMessageID(uuid.NewString() + "@" + messageIDHost(from))

	raw, err := writeWire(wire, plain, html, atts)
	if err != nil {
		return nil, err
	}

	return &Assembled{
		From:             from,
		Recipients:       recipients,
		Bytes:            raw,
		AttachmentErrors: attErrs,
	}, nil
}

// headerAttachmentLines lifts Attachment: fields out of the header
// block, so directives written above the blank line behave the same as
// ones in the body.
func headerAttachmentLines(h *mail.Header) string {
	var b strings.Builder
	fields := h.FieldsByKey("Attachment")
	for fields.Next() {
		b.WriteString(attachmentPrefix + " " + fields.Value() + "\n")
	}
	h.Del("Attachment")
	return b.String()
}

func commonMarkEnabled(h mail.Header, cfg config.Config, from string) bool {
	if value := h.Get("X-CommonMark"); value != "" {
		return strings.EqualFold(strings.TrimSpace(value), "true")
	}
	if id, ok := cfg.Identity(from); ok && id.CommonMark != nil {
		return *id.CommonMark
	}
	return false
}

func envelopeRecipients(h mail.Header) []string {
	var recipients []string
	seen := map[string]bool{}
	for _, key := range []string{"To", "Cc", "Bcc"} {
		list, err := h.AddressList(key)
		if err != nil {
			continue
		}
		for _, addr := range list {
			lower := strings.ToLower(addr.Address)
			if addr.Address == "" || seen[lower] {
				continue
			}
			seen[lower] = true
			recipients = append(recipients, addr.Address)
		}
	}
	return recipients
}

func messageIDHost(from string) string {
	if _, domain, found := strings.Cut(from, "@"); found && domain != "" {
		return domain
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "localhost"
}

func writeWire(h mail.Header, plain, html string, atts []Attachment) ([]byte, error) {
	var buf bytes.Buffer

	if html == "" && len(atts) == 0 {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, errors.Wrap(err, "creating message writer")
		}
		if _, err := io.WriteString(w, plain); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, errors.Wrap(err, "creating message writer")
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	if err := writeInlinePart(tw, "text/plain", plain); err != nil {
		return nil, err
	}
	if html != "" {
		if err := writeInlinePart(tw, "text/html", html); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, att := range atts {
		if err := writeAttachment(mw, att); err != nil {
			return nil, errors.Wrapf(err, "attaching %s", att.Name)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInlinePart(tw *mail.InlineWriter, contentType, content string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := tw.CreatePart(ph)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, content); err != nil {
		return err
	}
	return pw.Close()
}

func writeAttachment(mw *mail.Writer, att Attachment) error {
	var ah mail.AttachmentHeader
	ah.SetFilename(att.Name)
	ah.SetContentType(att.ContentType, nil)
	if att.Inline {
		ah.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": att.Name}))
	}
	if att.ContentID != "" {
		ah.Set("Content-ID", "<"+att.ContentID+">")
	}

	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return err
	}
	if _, err := aw.Write(att.Data); err != nil {
		return err
	}
	return aw.Close()
}
