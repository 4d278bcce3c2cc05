package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/docsearch/internal/retry"
)

// assetExtensions are URL suffixes that never contain article content;
// the fallback extractor is skipped for them.
var assetExtensions = map[string]bool{
	".js": true, ".css": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".pdf": true, ".zip": true, ".gz": true,
}

// isStaticAsset reports whether a URL points at a static asset rather
// than a page.
func isStaticAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if strings.Contains(u.Path, "/_static/") || strings.Contains(u.Path, "/static/") {
		return true
	}
	return assetExtensions[strings.ToLower(path.Ext(u.Path))]
}

// FallbackClient calls an external extraction HTTP service used when
// the in-process extractor produces nothing.
type FallbackClient struct {
	serviceURL string
	policy     retry.Policy
	client     *http.Client
}

// NewFallbackClient creates a client for the extractor service. Zero
// maxRetries means one attempt.
func NewFallbackClient(serviceURL string, maxRetries int, timeout time.Duration) *FallbackClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FallbackClient{
		serviceURL: serviceURL,
		policy:     retry.NewPolicy(retry.BackoffLinear, 0, 0, maxRetries),
		client:     &http.Client{Timeout: timeout},
	}
}

type fallbackRequest struct {
	URL string `json:"url"`
}

type fallbackResponse struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
	Excerpt  string `json:"excerpt"`
}

// Extract asks the service to fetch and extract targetURL, retrying
// transient failures up to the configured count. Context cancellation
// bubbles up immediately.
func (f *FallbackClient) Extract(ctx context.Context, targetURL string) (Extraction, error) {
	payload, err := json.Marshal(fallbackRequest{URL: targetURL})
	if err != nil {
		return Extraction{}, fmt.Errorf("marshal fallback request: %w", err)
	}

	attempts := f.policy.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Extraction{}, err
		}

		ex, err := f.once(ctx, payload)
		if err == nil {
			return ex, nil
		}
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		lastErr = err
		f.policy.Sleep(ctx, attempt+1)
	}
	return Extraction{}, fmt.Errorf("fallback extractor failed after %d attempts: %w", attempts, lastErr)
}

func (f *FallbackClient) once(ctx context.Context, payload []byte) (Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.serviceURL, bytes.NewReader(payload))
	if err != nil {
		return Extraction{}, fmt.Errorf("create fallback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Extraction{}, fmt.Errorf("call fallback extractor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Extraction{}, fmt.Errorf("fallback extractor status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Extraction{}, fmt.Errorf("read fallback response: %w", err)
	}
	var out fallbackResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Extraction{}, fmt.Errorf("parse fallback response: %w", err)
	}

	ex := Extraction{
		Title:    out.Title,
		Markdown: out.Markdown,
		Text:     out.Text,
		Excerpt:  out.Excerpt,
		Method:   "fallback_service",
	}
	if ex.IsEmpty() {
		return Extraction{}, fmt.Errorf("fallback extractor returned empty content")
	}
	return ex, nil
}
