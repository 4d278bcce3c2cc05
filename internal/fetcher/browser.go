package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// defaultNavigationTimeout bounds a single page render beyond the
// overall fetch timeout.
const defaultNavigationTimeout = 45 * time.Second

// BrowserRenderer renders pages in a headless browser for hosts where
// plain HTTP gets blocked or returns an empty shell.
type BrowserRenderer struct {
	navigationTimeout time.Duration
}

// NewBrowserRenderer creates a renderer. A zero navigationTimeout uses
// the default.
func NewBrowserRenderer(navigationTimeout time.Duration) *BrowserRenderer {
	if navigationTimeout <= 0 {
		navigationTimeout = defaultNavigationTimeout
	}
	return &BrowserRenderer{navigationTimeout: navigationTimeout}
}

// Render navigates to rawURL in a fresh headless browser tab and
// returns the rendered HTML plus the navigation HTTP status.
func (b *BrowserRenderer) Render(ctx context.Context, rawURL string) (string, int, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	navCtx, cancelNav := context.WithTimeout(browserCtx, b.navigationTimeout)
	defer cancelNav()

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(rawURL))
	if err != nil {
		return "", 0, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", status, fmt.Errorf("read rendered page: %w", err)
	}
	return html, status, nil
}
