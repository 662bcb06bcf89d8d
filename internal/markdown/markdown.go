// Package markdown is the single markdown-to-HTML renderer used for stored
// document HTML and for live previews.
package markdown

import (
	"bytes"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	rendererInstance goldmark.Markdown
	rendererOnce     sync.Once
)

func renderer() goldmark.Markdown {
	rendererOnce.Do(func() {
		// Raw HTML in the source is escaped since html.WithUnsafe is not set.
		rendererInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return rendererInstance
}

// ToHTML renders source. Empty input renders as an empty string.
func ToHTML(source string) string {
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := renderer().Convert([]byte(source), &buf); err != nil {
		// goldmark only fails on writer errors, which a bytes.Buffer never returns.
		return ""
	}
	return buf.String()
}
