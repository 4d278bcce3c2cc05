// Package crawler discovers documentation URLs for online tenants,
// either from sitemaps or by a breadth-first crawl from entry URLs.
// Discovery is streaming: each accepted URL is handed to a callback so
// fetching can begin before the crawl finishes.
package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docsearch/internal/limiter"
	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// DefaultMaxPages caps a crawl so a runaway site cannot grow the
// frontier forever.
const DefaultMaxPages = 10000

// Config controls one tenant's crawler.
type Config struct {
	SitemapURLs []string
	EntryURLs   []string
	Filter      URLFilter
	UserAgent   string
	Timeout     time.Duration
	MaxPages    int
}

// OnURLDiscovered receives each accepted URL as soon as it is found.
type OnURLDiscovered func(url string)

// Crawler walks a documentation site and reports its page URLs.
type Crawler struct {
	cfg    Config
	client *http.Client
	rate   *limiter.AdaptiveRateLimiter
	logger *slog.Logger
}

// New creates a Crawler. rate may be shared with the fetcher.
func New(cfg Config, rate *limiter.AdaptiveRateLimiter, logger *slog.Logger) *Crawler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docsearch/1.0"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if rate == nil {
		rate = limiter.NewAdaptiveRateLimiter()
	}
	return &Crawler{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		rate:   rate,
		logger: logger,
	}
}

// Crawl discovers URLs from sitemaps first, then breadth-first from the
// entry URLs. Each URL passing the tenant filter is emitted through
// onDiscovered (if non-nil) and included in the returned set.
func (c *Crawler) Crawl(ctx context.Context, onDiscovered OnURLDiscovered) (map[string]struct{}, error) {
	collected := make(map[string]struct{})
	emit := func(raw string) {
		normalized, err := urlpath.Normalize(raw)
		if err != nil {
			return
		}
		if _, seen := collected[normalized]; seen {
			return
		}
		if !c.cfg.Filter.ShouldProcess(normalized) {
			return
		}
		collected[normalized] = struct{}{}
		if onDiscovered != nil {
			onDiscovered(normalized)
		}
	}

	for _, sitemapURL := range c.cfg.SitemapURLs {
		urls, err := c.fetchSitemap(ctx, sitemapURL, 0)
		if err != nil {
			c.logger.Warn("sitemap discovery failed",
				logfields.URL(sitemapURL), logfields.Error(err))
			continue
		}
		c.logger.Info("sitemap parsed",
			logfields.URL(sitemapURL), logfields.Count(len(urls)))
		for _, u := range urls {
			emit(u)
		}
	}

	if len(c.cfg.EntryURLs) > 0 {
		if err := c.crawlFrom(ctx, c.cfg.EntryURLs, emit); err != nil {
			return collected, err
		}
	}
	return collected, nil
}

// crawlFrom runs the BFS frontier. Only URLs on one of the start hosts
// are followed. The frontier keeps URLs in the form the site linked
// them; the normalized form is used for dedupe and filtering only, so
// servers that are picky about trailing slashes still answer the
// fetch.
func (c *Crawler) crawlFrom(ctx context.Context, seeds []string, emit func(string)) error {
	allowedHosts := make(map[string]bool, len(seeds))
	var frontier []string
	visited := make(map[string]bool)

	for _, seed := range seeds {
		normalized, err := urlpath.Normalize(seed)
		if err != nil {
			c.logger.Warn("skipping invalid entry url", logfields.URL(seed), logfields.Error(err))
			continue
		}
		u, err := url.Parse(normalized)
		if err != nil {
			continue
		}
		allowedHosts[strings.ToLower(u.Host)] = true
		frontier = append(frontier, seed)
	}

	for len(frontier) > 0 && len(visited) < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return err
		}

		current := frontier[0]
		frontier = frontier[1:]
		normalized, err := urlpath.Normalize(current)
		if err != nil || visited[normalized] {
			continue
		}
		visited[normalized] = true
		emit(current)

		links, err := c.fetchLinks(ctx, current)
		if err != nil {
			c.logger.Debug("crawl fetch failed", logfields.URL(current), logfields.Error(err))
			continue
		}

		for _, link := range links {
			linkNorm, err := urlpath.Normalize(link)
			if err != nil || visited[linkNorm] {
				continue
			}
			u, err := url.Parse(linkNorm)
			if err != nil || !allowedHosts[strings.ToLower(u.Host)] {
				continue
			}
			frontier = append(frontier, link)
		}
	}
	return nil
}

// fetchLinks GETs one page and extracts its anchor targets resolved to
// absolute URLs.
func (c *Crawler) fetchLinks(ctx context.Context, pageURL string) ([]string, error) {
	if err := c.rate.Wait(ctx, pageURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.rate.RecordRateLimited(pageURL)
		return nil, fmt.Errorf("rate limited: %s", pageURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status=%d", pageURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	return extractLinks(resp.Body, base)
}

// extractLinks walks the HTML tree collecting href targets of anchors.
func extractLinks(r io.Reader, base *url.URL) ([]string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.TrimSpace(attr.Val)
				if href == "" || strings.HasPrefix(href, "#") ||
					strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
					continue
				}
				resolved, err := base.Parse(href)
				if err != nil {
					continue
				}
				if resolved.Scheme == "http" || resolved.Scheme == "https" {
					links = append(links, resolved.String())
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return links, nil
}
