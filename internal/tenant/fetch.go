package tenant

import (
	"context"
	"fmt"

	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
	"git.home.luguber.info/inful/docsearch/internal/logfields"
)

// Fetch context modes.
const (
	ContextFull        = "full"
	ContextSurrounding = "surrounding"
	ContextNone        = "none"
)

// surroundingCharLimit truncates surrounding-context responses.
const surroundingCharLimit = 8000

// FetchResponse returns one cached document.
type FetchResponse struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Fetch resolves a URL to its cached markdown in docs_root. It never
// reaches the network; unknown URLs produce an error response.
func (rt *Runtime) Fetch(ctx context.Context, uri, contextMode string) FetchResponse {
	resp := FetchResponse{URL: uri}

	switch contextMode {
	case "", ContextFull, ContextSurrounding, ContextNone:
	default:
		resp.Error = fmt.Sprintf("invalid context mode %q", contextMode)
		return resp
	}

	doc, err := rt.repo.Load(uri)
	if err != nil {
		if apperrors.IsNotFound(err) {
			resp.Error = "Document not found"
		} else {
			resp.Error = err.Error()
			rt.logger.Warn("fetch from cache failed", logfields.URL(uri), logfields.Error(err))
		}
		return resp
	}

	resp.URL = doc.URL
	resp.Title = doc.Title
	if resp.Title == "" {
		resp.Title = doc.Meta.Title
	}

	switch contextMode {
	case ContextNone:
	case ContextSurrounding:
		content := doc.Content.Markdown
		if len(content) > surroundingCharLimit {
			content = content[:surroundingCharLimit] + "…"
		}
		resp.Content = content
	default:
		resp.Content = doc.Content.Markdown
	}
	return resp
}
