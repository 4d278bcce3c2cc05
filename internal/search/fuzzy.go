package search

import "sort"

// MaxEditDistance scales the allowed Levenshtein distance with term
// length: two-char terms get none, short terms one, longer terms two.
func MaxEditDistance(term string) int {
	switch n := len(term); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// FuzzyMatch pairs a vocabulary token with its edit distance to the
// query term.
type FuzzyMatch struct {
	Term     string
	Distance int
}

// FindFuzzyMatches scans a field vocabulary for tokens within
// maxDistance of term. Matches come back sorted by distance ascending
// (ties lexically), so an exact match is always first.
func FindFuzzyMatches(term string, vocab []string, maxDistance int) []FuzzyMatch {
	var matches []FuzzyMatch
	for _, candidate := range vocab {
		// Length difference is a cheap lower bound on the distance.
		if diff := len(candidate) - len(term); diff > maxDistance || -diff > maxDistance {
			continue
		}
		if d := levenshtein(term, candidate, maxDistance); d <= maxDistance {
			matches = append(matches, FuzzyMatch{Term: candidate, Distance: d})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Term < matches[j].Term
	})
	return matches
}

// levenshtein computes the edit distance between a and b, bailing out
// with limit+1 once every cell of a row exceeds the limit.
func levenshtein(a, b string, limit int) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
