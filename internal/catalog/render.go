package catalog

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdownInstance is initialized once and reused; the configured goldmark
// converter is safe for concurrent use.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

// sanitizeUTF8 replaces invalid byte sequences so downstream JSON encoding
// never chokes on report files with broken encodings.
func sanitizeUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// renderHTML converts sanitized Markdown text to HTML.
func renderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
