package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxEditDistance(t *testing.T) {
	assert.Equal(t, 0, MaxEditDistance("go"))
	assert.Equal(t, 1, MaxEditDistance("api"))
	assert.Equal(t, 1, MaxEditDistance("files"))
	assert.Equal(t, 2, MaxEditDistance("django"))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("same", "same", 3))
	assert.Equal(t, 1, levenshtein("cat", "cut", 3))
	assert.Equal(t, 2, levenshtein("djagno", "django", 3))
	assert.Equal(t, 4, levenshtein("", "four", 5))
	// Early bail returns limit+1 once the limit is exceeded.
	assert.Greater(t, levenshtein("completely", "different", 2), 2)
}

// Matches come back distance-ascending with the exact match first.
func TestFindFuzzyMatchesOrdering(t *testing.T) {
	vocab := []string{"banana", "bananas", "band", "banan", "unrelated"}
	matches := FindFuzzyMatches("banana", vocab, 2)
	require.NotEmpty(t, matches)
	assert.Equal(t, "banana", matches[0].Term)
	assert.Equal(t, 0, matches[0].Distance)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i].Distance, matches[i-1].Distance)
	}
}

func TestFindFuzzyMatchesLengthPrefilter(t *testing.T) {
	matches := FindFuzzyMatches("ab", []string{"abcdefgh"}, 1)
	assert.Empty(t, matches)
}

func TestExpandSynonymsBidirectional(t *testing.T) {
	// Forward: thesaurus key.
	assert.Contains(t, ExpandSynonyms("config", nil), "configuration")
	// Reverse: term appears in a value list.
	assert.Contains(t, ExpandSynonyms("configuration", nil), "config")
	// Deterministic ordering across calls.
	assert.Equal(t, ExpandSynonyms("config", nil), ExpandSynonyms("config", nil))
	// Unknown terms expand to nothing.
	assert.Empty(t, ExpandSynonyms("xyzzy", nil))
}

func TestProximityBonusValues(t *testing.T) {
	// Adjacent terms: perfect phrase.
	adjacent := map[int][]uint32{0: {4}, 1: {5}}
	assert.Equal(t, 1.5, proximityBonus(adjacent, 2))

	// Wide scatter: no bonus.
	scattered := map[int][]uint32{0: {0}, 1: {30}}
	assert.Equal(t, 1.0, proximityBonus(scattered, 2))

	// Intermediate scatter decays linearly.
	near := map[int][]uint32{0: {0}, 1: {3}} // span 4, qlen 2, scatter 2
	bonus := proximityBonus(near, 2)
	assert.Greater(t, bonus, 1.0)
	assert.Less(t, bonus, 1.5)

	// Missing term positions yield no bonus.
	assert.Equal(t, 1.0, proximityBonus(map[int][]uint32{0: {1}}, 2))
}

func TestMinCoveringSpan(t *testing.T) {
	positions := map[int][]uint32{
		0: {2, 40},
		1: {41},
		2: {5, 42},
	}
	// Tight cluster 40..42 beats the scattered occurrences.
	assert.Equal(t, 3, minCoveringSpan(positions, 3))
}
