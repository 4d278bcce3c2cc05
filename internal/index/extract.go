package index

import (
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/docsearch/internal/docmodel"
)

// Stored-field truncation limits.
const (
	maxStoredTitle = 1 << 10
	maxStoredBody  = 64 << 10
)

// DocumentFields is the extracted per-field view of one document,
// ready for analysis and storage.
type DocumentFields struct {
	URL        string
	URLPath    string
	Title      string
	HeadingsH1 []string
	HeadingsH2 []string
	Headings   []string
	Body       string
	Path       string
	Tags       []string
	Language   string
	Excerpt    string
	Timestamp  int64
}

// Extract derives the indexed fields from a markdown document. relPath
// is the markdown path relative to docs_root.
func Extract(docURL, relPath, markdown string, meta docmodel.Meta) DocumentFields {
	fields := DocumentFields{
		URL:       docURL,
		Path:      relPath,
		Body:      markdown,
		Tags:      meta.Tags,
		Language:  canonicalLanguage(meta.Language),
		Timestamp: meta.LastFetchedAt.Unix(),
	}
	if u, err := url.Parse(docURL); err == nil {
		fields.URLPath = u.Path
	}

	md := goldmark.New()
	source := []byte(markdown)
	root := md.Parser().Parse(gmtext.NewReader(source))

	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Heading:
			text := nodeText(node, source)
			if text == "" {
				return gmast.WalkSkipChildren, nil
			}
			switch node.Level {
			case 1:
				fields.HeadingsH1 = append(fields.HeadingsH1, text)
				if fields.Title == "" {
					fields.Title = text
				}
			case 2:
				fields.HeadingsH2 = append(fields.HeadingsH2, text)
			default:
				fields.Headings = append(fields.Headings, text)
			}
			return gmast.WalkSkipChildren, nil
		case *gmast.Paragraph:
			if fields.Excerpt == "" {
				if text := nodeText(node, source); strings.TrimSpace(text) != "" {
					fields.Excerpt = strings.TrimSpace(text)
				}
			}
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})

	if fields.Title == "" {
		fields.Title = meta.Title
	}
	if fields.Title == "" {
		fields.Title = relPath
	}
	return fields
}

// nodeText collects the raw text content beneath a node.
func nodeText(n gmast.Node, source []byte) string {
	var b strings.Builder
	_ = gmast.Walk(n, func(child gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *gmast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *gmast.String:
			b.Write(t.Value)
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// canonicalLanguage normalizes a metadata language tag to its base
// form ("en-US" -> "en"). Unparseable or empty tags default to English.
func canonicalLanguage(tag string) string {
	if tag == "" {
		return "en"
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "en"
	}
	base, _ := parsed.Base()
	return base.String()
}

// AnalyzedText returns the text each indexed field contributes, keyed
// by field name. Multi-valued fields join with newlines so positions
// stay monotonic within the field.
func (f DocumentFields) AnalyzedText() map[string]string {
	return map[string]string{
		FieldURL:        f.URL,
		FieldURLPath:    f.URLPath,
		FieldTitle:      f.Title,
		FieldHeadingsH1: strings.Join(f.HeadingsH1, "\n"),
		FieldHeadingsH2: strings.Join(f.HeadingsH2, "\n"),
		FieldHeadings:   strings.Join(f.Headings, "\n"),
		FieldBody:       f.Body,
		FieldPath:       f.Path,
		FieldTags:       strings.Join(f.Tags, "\n"),
	}
}

// StoredBag is the JSON field bag persisted in the documents table.
// Tags are indexed only; title and body are truncated.
func (f DocumentFields) StoredBag() map[string]any {
	return map[string]any{
		FieldURL:       f.URL,
		FieldTitle:     truncate(f.Title, maxStoredTitle),
		FieldBody:      truncate(f.Body, maxStoredBody),
		FieldPath:      f.Path,
		FieldLanguage:  f.Language,
		FieldExcerpt:   f.Excerpt,
		FieldTimestamp: f.Timestamp,
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
