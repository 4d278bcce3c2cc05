package crawler

import "strings"

// URLFilter applies the tenant's whitelist/blacklist prefixes. An empty
// whitelist admits everything; the blacklist always wins.
type URLFilter struct {
	WhitelistPrefixes []string
	BlacklistPrefixes []string
}

// ShouldProcess reports whether a URL passes the tenant's prefix rules.
func (f URLFilter) ShouldProcess(url string) bool {
	for _, prefix := range f.BlacklistPrefixes {
		if prefix != "" && strings.HasPrefix(url, prefix) {
			return false
		}
	}
	if len(f.WhitelistPrefixes) == 0 {
		return true
	}
	for _, prefix := range f.WhitelistPrefixes {
		if prefix != "" && strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
