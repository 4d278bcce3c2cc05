package fetcher

import (
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
)

// Extraction is the normalized output of turning a fetched HTML page
// into searchable content.
type Extraction struct {
	Title    string
	Markdown string
	Text     string
	Excerpt  string
	Method   string
}

// IsEmpty reports whether extraction produced no usable content.
func (e Extraction) IsEmpty() bool {
	return strings.TrimSpace(e.Markdown) == "" && strings.TrimSpace(e.Text) == ""
}

// extractArticle runs the in-process extractor chain: readability pares
// the page down to the article node, then the result is converted to
// markdown. When readability finds nothing the whole page is converted.
func extractArticle(html string, pageURL *url.URL) (Extraction, error) {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)

	source := html
	method := "html_to_markdown"
	ex := Extraction{}
	if err == nil && strings.TrimSpace(article.Content) != "" {
		source = article.Content
		method = "readability"
		ex.Title = article.Title
		ex.Text = article.TextContent
		ex.Excerpt = article.Excerpt
	}

	domain := ""
	if pageURL != nil {
		domain = fmt.Sprintf("%s://%s", pageURL.Scheme, pageURL.Host)
	}
	markdown, err := htmltomarkdown.ConvertString(source, converter.WithDomain(domain))
	if err != nil {
		return Extraction{}, fmt.Errorf("convert to markdown: %w", err)
	}

	ex.Markdown = markdown
	ex.Method = method
	if ex.Title == "" {
		ex.Title = firstHeading(markdown)
	}
	return ex, nil
}

// firstHeading returns the text of the first markdown heading, used as
// a title fallback.
func firstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}
