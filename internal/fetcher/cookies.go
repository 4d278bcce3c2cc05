package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"time"
)

// persistentJar wraps a cookiejar.Jar and mirrors every SetCookies call
// into a JSON file so sessions survive restarts. Expired cookies are
// dropped on save.
type persistentJar struct {
	mu   sync.Mutex
	jar  *cookiejar.Jar
	path string
	// seen tracks cookies per origin URL string for serialization,
	// since cookiejar.Jar has no export API.
	seen map[string][]*http.Cookie
}

type storedCookies struct {
	Cookies map[string][]*http.Cookie `json:"cookies"`
}

func newPersistentJar(path string) (*persistentJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	p := &persistentJar{jar: jar, path: path, seen: map[string][]*http.Cookie{}}
	if path != "" {
		if err := p.load(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *persistentJar) load() error {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cookie file: %w", err)
	}
	var stored storedCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		// A corrupt cookie file is not worth failing a tenant over.
		return nil
	}
	for origin, cookies := range stored.Cookies {
		u, err := url.Parse(origin)
		if err != nil {
			continue
		}
		p.jar.SetCookies(u, cookies)
		p.seen[origin] = cookies
	}
	return nil
}

// SetCookies implements http.CookieJar.
func (p *persistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	p.jar.SetCookies(u, cookies)

	p.mu.Lock()
	defer p.mu.Unlock()
	origin := u.Scheme + "://" + u.Host
	p.seen[origin] = append(p.seen[origin], cookies...)
}

// Cookies implements http.CookieJar.
func (p *persistentJar) Cookies(u *url.URL) []*http.Cookie {
	return p.jar.Cookies(u)
}

// Save writes the accumulated cookies to disk.
func (p *persistentJar) Save() error {
	if p.path == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	stored := storedCookies{Cookies: map[string][]*http.Cookie{}}
	for origin, cookies := range p.seen {
		var live []*http.Cookie
		for _, c := range cookies {
			if !c.Expires.IsZero() && c.Expires.Before(now) {
				continue
			}
			live = append(live, c)
		}
		if len(live) > 0 {
			stored.Cookies[origin] = live
		}
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	return nil
}
