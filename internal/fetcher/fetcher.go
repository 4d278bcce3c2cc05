// Package fetcher turns URLs into documents. The happy path is a plain
// HTTP GET plus in-process article extraction; hosts that block plain
// clients get a headless-browser render, and an optional external
// extractor service covers pages the in-process chain cannot handle.
package fetcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/docsearch/internal/docmodel"
	"git.home.luguber.info/inful/docsearch/internal/limiter"
	"git.home.luguber.info/inful/docsearch/internal/logfields"
)

// DefaultTimeout bounds one HTTP GET end to end.
const DefaultTimeout = 30 * time.Second

const (
	http429Retries   = 3
	emfileBackoff    = 30 * time.Second
	defaultUserAgent = "docsearch/1.0"
)

// Config controls one tenant's fetcher.
type Config struct {
	// MarkdownMirrorSuffix, when set (e.g. ".md"), is tried as a raw
	// markdown URL before any HTML extraction.
	MarkdownMirrorSuffix string
	Timeout              time.Duration
	UserAgent            string
	// CookieFile persists sessions between runs. Empty disables.
	CookieFile string

	BrowserEnabled    bool
	BrowserFirstHosts []string

	// FallbackServiceURL enables the external extractor service.
	FallbackServiceURL string
	FallbackMaxRetries int
}

// FetchError is a typed fetch failure. Reason is a short stable string
// recorded on the URL metadata row.
type FetchError struct {
	Reason      string
	RateLimited bool
	Err         error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s)", e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FailureReason extracts the stable reason string from a fetch error,
// falling back to the error text.
func FailureReason(err error) string {
	var fe *FetchError
	if stderrors.As(err, &fe) {
		return fe.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsRateLimited reports whether the failure was an upstream 429.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return stderrors.As(err, &fe) && fe.RateLimited
}

// Fetcher fetches and extracts documents for one tenant.
type Fetcher struct {
	cfg          Config
	client       *http.Client
	jar          *persistentJar
	browser      *BrowserRenderer
	fallback     *FallbackClient
	rate         *limiter.AdaptiveRateLimiter
	browserFirst map[string]bool
	logger       *slog.Logger
	metrics      *Metrics
}

// New creates a Fetcher. rate may be shared with the crawler so both
// observe the same per-host backoff.
func New(cfg Config, rate *limiter.AdaptiveRateLimiter, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if rate == nil {
		rate = limiter.NewAdaptiveRateLimiter()
	}

	jar, err := newPersistentJar(cfg.CookieFile)
	if err != nil {
		return nil, err
	}

	f := &Fetcher{
		cfg:          cfg,
		client:       &http.Client{Timeout: cfg.Timeout, Jar: jar},
		jar:          jar,
		rate:         rate,
		browserFirst: map[string]bool{},
		logger:       logger,
		metrics:      &Metrics{},
	}
	if cfg.BrowserEnabled {
		f.browser = NewBrowserRenderer(0)
	}
	for _, h := range cfg.BrowserFirstHosts {
		f.browserFirst[strings.ToLower(h)] = true
	}
	if cfg.FallbackServiceURL != "" {
		f.fallback = NewFallbackClient(cfg.FallbackServiceURL, cfg.FallbackMaxRetries, cfg.Timeout)
	}
	return f, nil
}

// Metrics returns the fetcher's counters for status reporting.
func (f *Fetcher) Metrics() MetricsSnapshot { return f.metrics.Snapshot() }

// Close persists session cookies.
func (f *Fetcher) Close() error {
	return f.jar.Save()
}

// Fetch retrieves rawURL and extracts a Document. Failures carry a
// stable reason via FetchError; rate-limit failures are marked so the
// worker pool can shrink concurrency.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*docmodel.Document, error) {
	f.metrics.attempts.Add(1)

	doc, err := f.fetch(ctx, rawURL)
	if err != nil {
		f.metrics.failures.Add(1)
		return nil, err
	}
	f.metrics.successes.Add(1)
	f.rate.RecordSuccess(rawURL)
	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*docmodel.Document, error) {
	if err := f.rate.Wait(ctx, rawURL); err != nil {
		return nil, &FetchError{Reason: "cancelled", Err: err}
	}

	if f.cfg.MarkdownMirrorSuffix != "" {
		if doc, ok := f.tryMarkdownMirror(ctx, rawURL); ok {
			return doc, nil
		}
	}

	html, err := f.fetchHTML(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	pageURL, _ := url.Parse(rawURL)
	ex, exErr := extractArticle(html, pageURL)
	if exErr != nil || ex.IsEmpty() {
		ex, err = f.tryFallback(ctx, rawURL, exErr)
		if err != nil {
			return nil, err
		}
	}

	return f.buildDocument(rawURL, ex), nil
}

// tryMarkdownMirror swaps the URL extension for the configured suffix
// and fetches it directly. Any failure silently falls through to the
// HTML path.
func (f *Fetcher) tryMarkdownMirror(ctx context.Context, rawURL string) (*docmodel.Document, bool) {
	mirror := mirrorURL(rawURL, f.cfg.MarkdownMirrorSuffix)
	if mirror == "" {
		return nil, false
	}

	body, status, err := f.get(ctx, mirror)
	if err != nil || status != http.StatusOK || strings.TrimSpace(body) == "" {
		return nil, false
	}

	f.logger.Debug("markdown mirror hit", logfields.URL(mirror))
	return f.buildDocument(rawURL, Extraction{
		Title:    firstHeading(body),
		Markdown: body,
		Method:   "markdown_mirror",
	}), true
}

// mirrorURL rewrites rawURL to its markdown mirror, or returns "" when
// the URL shape does not support one.
func mirrorURL(rawURL, suffix string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := u.Path
	switch {
	case strings.HasSuffix(p, suffix):
		return rawURL
	case strings.HasSuffix(p, ".html"):
		u.Path = strings.TrimSuffix(p, ".html") + suffix
	case p == "" || strings.HasSuffix(p, "/"):
		u.Path = p + "index" + suffix
	case path.Ext(p) == "":
		u.Path = p + suffix
	default:
		return ""
	}
	return u.String()
}

// fetchHTML runs the dual-path strategy: browser-first hosts render in
// the headless browser with HTTP as fallback, everything else goes
// HTTP-first with a browser fallback on persistent 403s.
func (f *Fetcher) fetchHTML(ctx context.Context, rawURL string) (string, error) {
	if f.browser != nil && f.isBrowserFirst(rawURL) {
		html, err := f.renderInBrowser(ctx, rawURL)
		if err == nil {
			return html, nil
		}
		var fe *FetchError
		if stderrors.As(err, &fe) && (fe.RateLimited || fe.Reason == "emfile") {
			return "", err
		}
		f.logger.Debug("browser render failed, falling back to http",
			logfields.URL(rawURL), logfields.Error(err))
	}

	html, err := f.httpWithRetries(ctx, rawURL)
	if err == nil {
		return html, nil
	}

	var fe *FetchError
	if f.browser != nil && stderrors.As(err, &fe) && fe.Reason == "status=403" {
		f.logger.Debug("http blocked, trying browser", logfields.URL(rawURL))
		return f.renderInBrowser(ctx, rawURL)
	}
	return "", err
}

func (f *Fetcher) isBrowserFirst(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return f.browserFirst[strings.ToLower(u.Hostname())]
}

func (f *Fetcher) renderInBrowser(ctx context.Context, rawURL string) (string, error) {
	html, status, err := f.browser.Render(ctx, rawURL)
	if err != nil {
		if strings.Contains(err.Error(), "too many open files") {
			_ = sleepCtx(ctx, emfileBackoff)
			return "", &FetchError{Reason: "emfile", Err: err}
		}
		return "", &FetchError{Reason: "browser_error", Err: err}
	}
	if status == http.StatusTooManyRequests {
		f.rate.RecordRateLimited(rawURL)
		return "", &FetchError{Reason: "status=429", RateLimited: true}
	}
	if status >= 400 {
		return "", &FetchError{Reason: fmt.Sprintf("status=%d", status)}
	}
	return html, nil
}

// httpWithRetries performs a GET, retrying 429s with adaptive backoff.
func (f *Fetcher) httpWithRetries(ctx context.Context, rawURL string) (string, error) {
	var lastStatus int
	for attempt := 0; attempt <= http429Retries; attempt++ {
		if attempt > 0 {
			if err := f.rate.Wait(ctx, rawURL); err != nil {
				return "", &FetchError{Reason: "cancelled", Err: err}
			}
		}

		body, status, err := f.get(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil || strings.Contains(err.Error(), "context deadline exceeded") {
				return "", &FetchError{Reason: "timeout", Err: err}
			}
			return "", &FetchError{Reason: "http_error", Err: err}
		}

		lastStatus = status
		switch {
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusTooManyRequests:
			f.rate.RecordRateLimited(rawURL)
			continue
		case status == http.StatusForbidden:
			// Bot protection often clears after cookies settle.
			continue
		default:
			return "", &FetchError{Reason: fmt.Sprintf("status=%d", status)}
		}
	}

	return "", &FetchError{
		Reason:      fmt.Sprintf("status=%d", lastStatus),
		RateLimited: lastStatus == http.StatusTooManyRequests,
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return string(body), resp.StatusCode, nil
}

func (f *Fetcher) tryFallback(ctx context.Context, rawURL string, cause error) (Extraction, error) {
	if f.fallback == nil {
		return Extraction{}, &FetchError{Reason: "fallback_disabled", Err: cause}
	}
	if isStaticAsset(rawURL) {
		return Extraction{}, &FetchError{Reason: "fallback_skipped_asset"}
	}

	ex, err := f.fallback.Extract(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return Extraction{}, &FetchError{Reason: "cancelled", Err: err}
		}
		return Extraction{}, &FetchError{Reason: "fallback_failed", Err: err}
	}
	return ex, nil
}

func (f *Fetcher) buildDocument(rawURL string, ex Extraction) *docmodel.Document {
	title := strings.TrimSpace(ex.Title)
	if title == "" {
		title = titleFromURL(rawURL)
	}
	return &docmodel.Document{
		URL:     rawURL,
		Title:   title,
		Content: docmodel.Content{Markdown: ex.Markdown, Text: ex.Text},
		Excerpt: ex.Excerpt,
		Meta: docmodel.Meta{
			Status:        docmodel.StatusSuccess,
			LastFetchedAt: time.Now(),
			Title:         title,
			Language:      "en",
			ExtractionVia: ex.Method,
		},
	}
}

// titleFromURL derives a last-resort title from the URL path.
func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return rawURL
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.ReplaceAll(strings.ReplaceAll(base, "-", " "), "_", " ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
