// Package docmodel holds the document aggregate shared by the fetcher,
// the storage layer and the indexer.
package docmodel

import (
	"strings"
	"time"
)

// FetchStatus is the lifecycle state of a document's last fetch.
type FetchStatus string

const (
	StatusPending FetchStatus = "pending"
	StatusSuccess FetchStatus = "success"
	StatusFailed  FetchStatus = "failed"
)

// Content carries the markdown body and an optional plain-text view.
// At least one of the two must be non-whitespace.
type Content struct {
	Markdown string `json:"markdown"`
	Text     string `json:"text,omitempty"`
}

// IsEmpty reports whether both views are blank.
func (c Content) IsEmpty() bool {
	return strings.TrimSpace(c.Markdown) == "" && strings.TrimSpace(c.Text) == ""
}

// Meta is the per-document fetch metadata persisted in the side-car
// `.meta.json` file.
type Meta struct {
	Status        FetchStatus `json:"status"`
	RetryCount    int         `json:"retry_count"`
	LastFetchedAt time.Time   `json:"last_fetched_at"`
	Title         string      `json:"title,omitempty"`
	Language      string      `json:"language,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	ExtractionVia string      `json:"extraction_method,omitempty"`
}

// Document is a single documentation page. Identity is the normalized
// URL only; two documents with the same URL compare equal regardless of
// content.
type Document struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content Content `json:"content"`
	Excerpt string  `json:"excerpt,omitempty"`
	Meta    Meta    `json:"metadata"`
}

// Equal compares documents by URL identity.
func (d Document) Equal(other Document) bool {
	return d.URL == other.URL
}

// Validate enforces the aggregate invariants.
func (d Document) Validate() error {
	if d.URL == "" {
		return errEmptyURL
	}
	if strings.TrimSpace(d.Title) == "" {
		return errEmptyTitle
	}
	if d.Content.IsEmpty() {
		return errEmptyContent
	}
	if d.Meta.RetryCount < 0 {
		return errNegativeRetry
	}
	return nil
}
