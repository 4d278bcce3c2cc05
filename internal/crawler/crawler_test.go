package crawler

import (
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestURLFilter(t *testing.T) {
	f := URLFilter{
		WhitelistPrefixes: []string{"https://docs.example.com/en/"},
		BlacklistPrefixes: []string{"https://docs.example.com/en/v1/"},
	}
	assert.True(t, f.ShouldProcess("https://docs.example.com/en/guide"))
	assert.False(t, f.ShouldProcess("https://docs.example.com/fr/guide"))
	assert.False(t, f.ShouldProcess("https://docs.example.com/en/v1/old"))

	// Empty whitelist admits everything not blacklisted.
	open := URLFilter{BlacklistPrefixes: []string{"https://e.com/private/"}}
	assert.True(t, open.ShouldProcess("https://e.com/docs"))
	assert.False(t, open.ShouldProcess("https://e.com/private/x"))
}

func TestCrawlFromSitemap(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/guide</loc></url>
  <url><loc>%s/reference</loc></url>
</urlset>`, srv.URL, srv.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var discovered []string
	c := New(Config{SitemapURLs: []string{srv.URL + "/sitemap.xml"}}, nil, testLogger())
	urls, err := c.Crawl(context.Background(), func(u string) { discovered = append(discovered, u) })
	require.NoError(t, err)

	assert.Len(t, urls, 2)
	assert.Len(t, discovered, 2)
	for _, u := range discovered {
		_, ok := urls[u]
		assert.True(t, ok)
	}
}

func TestCrawlSitemapIndex(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap_index.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap_a.xml</loc></sitemap>
</sitemapindex>`, srv.URL)
		case "/sitemap_a.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset><url><loc>%s/page-a</loc></url></urlset>`, srv.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{SitemapURLs: []string{srv.URL + "/sitemap_index.xml"}}, nil, testLogger())
	urls, err := c.Crawl(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, urls, 1)
}

func TestCrawlGzipSitemap(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml.gz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/gzip")
		gz := gzip.NewWriter(w)
		fmt.Fprintf(gz, `<?xml version="1.0"?>
<urlset><url><loc>%s/compressed</loc></url></urlset>`, srv.URL)
		_ = gz.Close()
	}))
	defer srv.Close()

	c := New(Config{SitemapURLs: []string{srv.URL + "/sitemap.xml.gz"}}, nil, testLogger())
	urls, err := c.Crawl(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, urls, 1)
}

func TestCrawlBFSStaysOnHost(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprintf(w, `<html><body>
<a href="/guide">Guide</a>
<a href="%s/reference">Ref</a>
<a href="https://other.example.com/offsite">Offsite</a>
<a href="#section">Anchor</a>
<a href="mailto:team@example.com">Mail</a>
</body></html>`, srv.URL)
		case "/guide":
			fmt.Fprint(w, `<html><body><a href="/guide/deep">Deep</a></body></html>`)
		default:
			fmt.Fprint(w, `<html><body>leaf</body></html>`)
		}
	}))
	defer srv.Close()

	c := New(Config{EntryURLs: []string{srv.URL + "/"}}, nil, testLogger())
	urls, err := c.Crawl(context.Background(), nil)
	require.NoError(t, err)

	for u := range urls {
		assert.False(t, strings.Contains(u, "other.example.com"), u)
	}

	deep, err := urlpath.Normalize(srv.URL + "/guide/deep")
	require.NoError(t, err)
	_, ok := urls[deep]
	assert.True(t, ok, "BFS should reach two levels deep")
}

func TestCrawlFetchesLinksAsDiscovered(t *testing.T) {
	// The server only answers the exact paths it linked; slash-suffixed
	// rewrites get a 404. The crawl must still walk the whole chain.
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><body><a href="/first">First</a></body></html>`)
		case "/first":
			fmt.Fprint(w, `<html><body><a href="/second">Second</a></body></html>`)
		case "/second":
			fmt.Fprint(w, `<html><body>leaf</body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{EntryURLs: []string{srv.URL + "/"}}, nil, testLogger())
	urls, err := c.Crawl(context.Background(), nil)
	require.NoError(t, err)

	second, err := urlpath.Normalize(srv.URL + "/second")
	require.NoError(t, err)
	_, ok := urls[second]
	assert.True(t, ok, "chain should survive strict server paths")
}

func TestCrawlHonorsMaxPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		// Every page links to a new one, forever.
		fmt.Fprintf(w, `<html><body><a href="%s%snext">n</a></body></html>`, srv.URL, r.URL.Path)
	}))
	defer srv.Close()

	c := New(Config{EntryURLs: []string{srv.URL + "/"}, MaxPages: 5}, nil, testLogger())
	urls, err := c.Crawl(context.Background(), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(urls), 5)
}

func TestCrawlAppliesFilter(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
<a href="%s/en/guide">EN</a>
<a href="%s/fr/guide">FR</a>
</body></html>`, srv.URL, srv.URL)
	}))
	defer srv.Close()

	c := New(Config{
		EntryURLs: []string{srv.URL + "/en/"},
		Filter:    URLFilter{WhitelistPrefixes: []string{srv.URL + "/en/"}},
	}, nil, testLogger())

	urls, err := c.Crawl(context.Background(), nil)
	require.NoError(t, err)
	for u := range urls {
		assert.Contains(t, u, "/en/", u)
	}
}

func TestExtractLinksResolvesRelative(t *testing.T) {
	base, err := url.Parse("https://docs.example.com/en/guide/")
	require.NoError(t, err)

	links, err := extractLinks(strings.NewReader(
		`<html><body><a href="../reference">Ref</a><a href="sub/page">Sub</a></body></html>`),
		base)
	require.NoError(t, err)
	assert.Contains(t, links, "https://docs.example.com/en/reference")
	assert.Contains(t, links, "https://docs.example.com/en/guide/sub/page")
}
