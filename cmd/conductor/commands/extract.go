package commands

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// extractContent converts rendered markup to the requested format.
func extractContent(html, format string) (string, error) {
	switch format {
	case "text":
		return documentText(html)
	case "markdown":
		return documentMarkdown(html)
	default:
		return "", fmt.Errorf("unsupported extract format %q", format)
	}
}

// documentText strips a document down to its visible text. Script,
// style, and embed elements never contribute content.
func documentText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript, iframe, object, embed").Remove()

	return strings.TrimSpace(doc.Text()), nil
}

// documentMarkdown renders a document as Markdown.
func documentMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")

	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(markdown), nil
}
