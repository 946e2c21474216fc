// Package content renders blog post Markdown to HTML.
package content

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownOnce     sync.Once
	markdownInstance goldmark.Markdown
)

// markdown returns the shared converter. goldmark keeps per-call state in
// Convert, so one instance serves all requests.
func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Typographer,
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			// Raw HTML and unsafe link schemes in the source are dropped.
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
			),
		)
	})

	return markdownInstance
}

// Render converts Markdown to HTML. Raw HTML embedded in the source is
// never passed through.
func Render(source string) (template.HTML, error) {
	if source == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := markdown().Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}

	//nolint:gosec // goldmark drops raw HTML unless WithUnsafe is set.
	return template.HTML(buf.String()), nil
}
