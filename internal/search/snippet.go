package search

import (
	"regexp"
	"sort"
	"strings"
)

// Snippet styles.
const (
	StylePlain = "plain"
	StyleHTML  = "html"
)

// SnippetConfig controls snippet extraction and highlighting.
type SnippetConfig struct {
	// MaxLength clamps the final fragment.
	MaxLength int
	// BoundaryBudget bounds how far the sentence boundary search looks
	// in each direction from the match.
	BoundaryBudget int
	// MaxHighlights caps the highlighted terms per snippet.
	MaxHighlights int
	// Style is plain ([[term]]) or html (<mark>term</mark>).
	Style string
}

// DefaultSnippetConfig returns the standard fragment settings.
func DefaultSnippetConfig() SnippetConfig {
	return SnippetConfig{
		MaxLength:      300,
		BoundaryBudget: 100,
		MaxHighlights:  3,
		Style:          StylePlain,
	}
}

var markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)

// BuildSnippet extracts a sentence-aware fragment around the first term
// match in body and highlights up to MaxHighlights terms.
func BuildSnippet(body string, terms []string, cfg SnippetConfig) string {
	if cfg.MaxLength <= 0 {
		cfg = DefaultSnippetConfig()
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	start := firstMatch(body, terms)
	fragment := sentenceWindow(body, start, cfg)
	return highlight(fragment, terms, cfg)
}

// firstMatch returns the byte offset of the earliest case-insensitive
// term occurrence, or 0 when nothing matches.
func firstMatch(body string, terms []string) int {
	lower := strings.ToLower(body)
	best := -1
	for _, term := range terms {
		if term == "" {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(term)); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// sentenceWindow expands outward from the match to the enclosing
// sentence using `[.!?]<space>` boundaries, bounded by the budget, then
// clamps to the max length.
func sentenceWindow(body string, match int, cfg SnippetConfig) string {
	start := match - cfg.BoundaryBudget
	if start < 0 {
		start = 0
	}
	for i := match - 1; i >= start; i-- {
		if isSentenceBoundary(body, i) {
			start = i + 2 // after the punctuation and the space
			break
		}
	}

	end := match + cfg.BoundaryBudget
	if end > len(body) {
		end = len(body)
	}
	for i := match; i < end-1; i++ {
		if isSentenceBoundary(body, i) {
			end = i + 1 // keep the punctuation
			break
		}
	}

	if end-start > cfg.MaxLength {
		end = start + cfg.MaxLength
	}
	return strings.TrimSpace(body[start:end])
}

func isSentenceBoundary(body string, i int) bool {
	if i+1 >= len(body) {
		return false
	}
	c := body[i]
	return (c == '.' || c == '!' || c == '?') && body[i+1] == ' '
}

type highlightSpan struct {
	start, end int
}

// highlight wraps term matches in the configured style. Regions inside
// markdown links are skipped, overlapping candidates resolve
// longer-first, and at most MaxHighlights spans apply.
func highlight(fragment string, terms []string, cfg SnippetConfig) string {
	if len(terms) == 0 {
		return fragment
	}

	linkSpans := markdownLinkRe.FindAllStringIndex(fragment, -1)
	lower := strings.ToLower(fragment)

	// Longer terms first so nested matches lose to their container.
	ordered := append([]string(nil), terms...)
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	var spans []highlightSpan
	for _, term := range ordered {
		if len(spans) >= cfg.MaxHighlights {
			break
		}
		if term == "" {
			continue
		}
		needle := strings.ToLower(term)
		offset := 0
		for len(spans) < cfg.MaxHighlights {
			idx := strings.Index(lower[offset:], needle)
			if idx < 0 {
				break
			}
			span := highlightSpan{start: offset + idx, end: offset + idx + len(needle)}
			offset = span.end
			if insideAny(span, linkSpans) || overlapsAny(span, spans) {
				continue
			}
			spans = append(spans, span)
		}
	}
	if len(spans) == 0 {
		return fragment
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	prev := 0
	for _, span := range spans {
		b.WriteString(fragment[prev:span.start])
		switch cfg.Style {
		case StyleHTML:
			b.WriteString("<mark>")
			b.WriteString(fragment[span.start:span.end])
			b.WriteString("</mark>")
		default:
			b.WriteString("[[")
			b.WriteString(fragment[span.start:span.end])
			b.WriteString("]]")
		}
		prev = span.end
	}
	b.WriteString(fragment[prev:])
	return b.String()
}

func insideAny(span highlightSpan, links [][]int) bool {
	for _, link := range links {
		if span.start >= link[0] && span.end <= link[1] {
			return true
		}
	}
	return false
}

func overlapsAny(span highlightSpan, spans []highlightSpan) bool {
	for _, other := range spans {
		if span.start < other.end && other.start < span.end {
			return true
		}
	}
	return false
}
