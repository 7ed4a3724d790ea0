package compose

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftForAssembly(t *testing.T) *Draft {
	t.Helper()
	d, err := NewDraft(OpNew, nil, testConfig(), DeriveOptions{})
	require.NoError(t, err)
	d.Header.Set("To", "ada@example.org")
	d.Header.SetSubject("Assembly")
	return d
}

func readParts(t *testing.T, raw []byte) (header mail.Header, inline []string, attNames []string) {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	header = mr.Header
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		// The wire uses CRLF; compare against what was written.
		text := strings.ReplaceAll(string(body), "\r\n", "\n")
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, err := h.ContentType()
			require.NoError(t, err)
			inline = append(inline, contentType+": "+text)
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			require.NoError(t, err)
			attNames = append(attNames, name)
		}
	}
	return header, inline, attNames
}

func TestAssemblePlainOnly(t *testing.T) {
	d := draftForAssembly(t)
	d.Header.Set("X-CommonMark", "false")
	d.Body = "Just text.\n"

	asm, err := Assemble(d, testConfig(), DefaultRenderers())
	require.NoError(t, err)

	assert.Equal(t, "me@example.com", asm.From)
	assert.Equal(t, []string{"ada@example.org"}, asm.Recipients)
	assert.Empty(t, asm.AttachmentErrors)

	header, inline, atts := readParts(t, asm.Bytes)
	assert.Empty(t, atts)
	require.Len(t, inline, 1)
	assert.Equal(t, "text/plain: Just text.\n", inline[0])

	contentType, _, err := header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text/plain", contentType)
}

func TestAssembleCommonMarkAlternative(t *testing.T) {
	d := draftForAssembly(t)
	d.Body = "# Heading\n\nBody text.\n"

	asm, err := Assemble(d, testConfig(), DefaultRenderers())
	require.NoError(t, err)

	_, inline, _ := readParts(t, asm.Bytes)
	require.Len(t, inline, 2)
	assert.Equal(t, "text/plain: # Heading\n\nBody text.\n", inline[0])
	assert.True(t, strings.HasPrefix(inline[1], "text/html: "))
	assert.Contains(t, inline[1], "<h1>Heading</h1>")
}

func TestAssembleStripsPrivateHeaders(t *testing.T) {
	d := draftForAssembly(t)
	d.Header.Set("Bcc", "secret@example.net")
	d.Body = "hi\n"

	asm, err := Assemble(d, testConfig(), DefaultRenderers())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ada@example.org", "secret@example.net"}, asm.Recipients)

	header, _, _ := readParts(t, asm.Bytes)
	assert.Empty(t, header.Get("Bcc"))
	assert.Empty(t, header.Get("X-CommonMark"))

	msgID, err := header.MessageID()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(msgID, "@example.com"))
	date, err := header.Date()
	require.NoError(t, err)
	assert.False(t, date.IsZero())
}

func TestAssembleFreshMessageIDs(t *testing.T) {
	d := draftForAssembly(t)
	d.Body = "hi\n"
	cfg := testConfig()

	first, err := Assemble(d, cfg, DefaultRenderers())
	require.NoError(t, err)
	second, err := Assemble(d, cfg, DefaultRenderers())
	require.NoError(t, err)

	h1, _, _ := readParts(t, first.Bytes)
	h2, _, _ := readParts(t, second.Bytes)
	id1, err := h1.MessageID()
	require.NoError(t, err)
	id2, err := h2.MessageID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestAssembleWithAttachments(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("some notes"))

	d := draftForAssembly(t)
	d.Header.Set("X-CommonMark", "false")
	d.Body = "Attachment: " + path + "\nSee attached.\n"

	asm, err := Assemble(d, testConfig(), DefaultRenderers())
	require.NoError(t, err)
	assert.Empty(t, asm.AttachmentErrors)

	_, inline, atts := readParts(t, asm.Bytes)
	require.Len(t, inline, 1)
	assert.Equal(t, "text/plain: See attached.\n", inline[0])
	assert.Equal(t, []string{"notes.txt"}, atts)
}

func TestAssembleHeaderAttachmentDirective(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", []byte("a"))

	d := draftForAssembly(t)
	d.Header.Set("X-CommonMark", "false")
	d.Header.Set("Attachment", path)
	d.Body = "body\n"

	asm, err := Assemble(d, testConfig(), DefaultRenderers())
	require.NoError(t, err)
	assert.Empty(t, asm.AttachmentErrors)

	header, _, atts := readParts(t, asm.Bytes)
	assert.Equal(t, []string{"a.txt"}, atts)
	assert.Empty(t, header.Get("Attachment"))
}

func TestAssembleInlineAttachmentOnWire(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "img.png", []byte("png"))

	d := draftForAssembly(t)
	d.Body = "Attachment: " + path + `; inline=true; name="x.png"` + "\n" +
		"See: ![alt](cid:x.png)\n"

	asm, err := Assemble(d, testConfig(), DefaultRenderers())
	require.NoError(t, err)
	assert.Empty(t, asm.AttachmentErrors)

	wire := strings.ToLower(string(asm.Bytes))
	assert.Contains(t, wire, "content-id: <x.png>")
	assert.Contains(t, wire, `content-disposition: inline`)
	assert.NotContains(t, wire, "attachment: "+strings.ToLower(path))
}

func TestAssembleMissingAttachmentStillSends(t *testing.T) {
	d := draftForAssembly(t)
	d.Header.Set("X-CommonMark", "false")
	missing := filepath.Join(t.TempDir(), "gone.txt")
	d.Body = "Attachment: " + missing + "\nbody\n"

	asm, err := Assemble(d, testConfig(), DefaultRenderers())
	require.NoError(t, err)
	require.Len(t, asm.AttachmentErrors, 1)
	assert.Equal(t, missing, asm.AttachmentErrors[0].Path)

	_, inline, atts := readParts(t, asm.Bytes)
	assert.Empty(t, atts)
	require.Len(t, inline, 1)
}
