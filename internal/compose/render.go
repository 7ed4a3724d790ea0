package compose

import (
	"bytes"
	"strings"

	"github.com/russross/blackfriday/v2"
	"github.com/yuin/goldmark"
)

// Renderer turns CommonMark-flavored plain text into HTML. Renderers
// are tried in order; the first available one that succeeds wins, and
// plain text is always the final fallback.
type Renderer interface {
	Name() string
	Available() bool
	Render(src string) (string, error)
}

type goldmarkRenderer struct{}

func (goldmarkRenderer) Name() string    { return "goldmark" }
func (goldmarkRenderer) Available() bool { return true }

func (goldmarkRenderer) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type blackfridayRenderer struct{}

func (blackfridayRenderer) Name() string    { return "blackfriday" }
func (blackfridayRenderer) Available() bool { return true }

func (blackfridayRenderer) Render(src string) (string, error) {
	return string(blackfriday.Run([]byte(src))), nil
}

// DefaultRenderers returns the built-in renderer chain.
func DefaultRenderers() []Renderer {
	return []Renderer{goldmarkRenderer{}, blackfridayRenderer{}}
}

// RenderBody produces the plain part and, when enabled and a renderer
// is available, the HTML part. The plain part is always the body as
// written; renderer misses are silent, not errors.
func RenderBody(body string, enabled bool, renderers []Renderer) (plain, html string) {
	plain = body
	if !enabled {
		return plain, ""
	}
	for _, r := range renderers {
		if !r.Available() {
			continue
		}
		out, err := r.Render(body)
		if err != nil || strings.TrimSpace(out) == "" {
			continue
		}
		return plain, out
	}
	return plain, ""
}
