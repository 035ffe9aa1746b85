// Package render converts markdown answers to HTML for web clients.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer turns answer markdown into HTML. Raw HTML in the input is never
// passed through.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a Renderer highlighting code blocks with the given chroma
// style ("github" when empty).
func New(style string) *Renderer {
	if style == "" {
		style = "github"
	}
	return &Renderer{md: goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)}
}

// HTML renders answer.
func (r *Renderer) HTML(answer string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(answer), &buf); err != nil {
		return "", fmt.Errorf("rendering answer: %w", err)
	}
	return buf.String(), nil
}
