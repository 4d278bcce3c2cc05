// Package urlpath maps document URLs to deterministic on-disk paths.
//
// A tenant's docs_root holds the markdown tree; metadata and search
// segments live in reserved subtrees next to it.
package urlpath

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Reserved directory names under a tenant's docs_root.
const (
	MetadataDirName = "__docs_metadata"
	SegmentsDirName = "__search_segments"
	StagingPrefix   = ".staging-"
)

// MarkdownExt is the on-disk extension for stored documents.
const MarkdownExt = ".md"

// MetaExt is the extension of the metadata side-car files.
const MetaExt = ".meta.json"

// Normalize canonicalizes a document URL so that equality is byte
// equality: the fragment is dropped, the tracking `rg` query parameter
// is dropped, remaining query parameters are sorted, and
// directory-looking paths (no file extension in the last segment) get a
// trailing slash.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	if u.RawQuery != "" {
		q := u.Query()
		q.Del("rg")
		u.RawQuery = sortedEncode(q)
	}

	if u.Path == "" {
		u.Path = "/"
	}
	if !strings.HasSuffix(u.Path, "/") && !hasFileExtension(u.Path) {
		u.Path += "/"
	}

	return u.String(), nil
}

// sortedEncode is url.Values.Encode with deterministic key and value order.
func sortedEncode(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), q[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func hasFileExtension(p string) bool {
	last := path.Base(p)
	ext := path.Ext(last)
	// A lone dot or a hidden segment like ".well-known" is not an extension.
	return len(ext) > 1 && ext != last
}

// Translate maps a URL to its markdown path relative to docs_root.
// The mapping is sha256(normalized-url) as lowercase hex, which is
// deterministic and platform portable.
func Translate(raw string) (string, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return HashRelPath(normalized), nil
}

// HashRelPath returns the relative markdown path for an already
// normalized URL.
func HashRelPath(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]) + MarkdownExt
}

// MetaRelPath returns the metadata side-car path mirroring a markdown
// relative path under the metadata subtree.
func MetaRelPath(mdRelPath string) string {
	return path.Join(MetadataDirName, strings.TrimSuffix(mdRelPath, MarkdownExt)+MetaExt)
}

// IsReservedRelPath reports whether a relative path points into one of
// the subtrees the indexer and browse walker must skip.
func IsReservedRelPath(rel string) bool {
	rel = strings.TrimPrefix(rel, "./")
	first := rel
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		first = rel[:i]
	}
	return first == MetadataDirName || first == SegmentsDirName || strings.HasPrefix(first, ".")
}
