package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out
}

func TestDefaultAnalyzer(t *testing.T) {
	a := Get(ProfileDefault)
	tokens := a.Analyze("The quick Running tests")
	assert.Equal(t, []string{"quick", "runn", "test"}, terms(tokens))

	// Positions are dense after the stopword drop.
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Position)
	}
}

func TestStemTable(t *testing.T) {
	cases := map[string]string{
		"running":      "runn",
		"testing":      "test",
		"organization": "organize",
		"settings":     "setting",
		"cat":          "cat",
		"as":           "as",
	}
	for in, want := range cases {
		assert.Equal(t, want, Stem(in), "stem(%s)", in)
	}
}

func TestStemNeverBelowTwoChars(t *testing.T) {
	assert.Equal(t, "is", Stem("is"))
	// Stripping "es" would leave one char, so the term stays whole.
	assert.Equal(t, "des", Stem("des"))
}

func TestEnglishNoStem(t *testing.T) {
	tokens := Get(ProfileEnglishNoStem).Analyze("Running tests")
	assert.Equal(t, []string{"running", "tests"}, terms(tokens))
}

func TestCodeFriendlyAnalyzer(t *testing.T) {
	a := Get(ProfileCodeFriendly)

	tokens := a.Analyze("settings.DEBUG snake_case")
	assert.Contains(t, terms(tokens), "settings.debug")
	assert.Contains(t, terms(tokens), "snake_case")

	// CamelCase words also emit their humps.
	tokens = a.Analyze("CamelCase")
	assert.Equal(t, []string{"camelcase", "camel", "case"}, terms(tokens))
}

// The hump regex does not cover words with consecutive capitals, so
// VSCode stays a single token. Pinned on purpose.
func TestCamelCaseVSCodeLimitation(t *testing.T) {
	assert.Nil(t, SplitCamelCase("VSCode"))
	tokens := Get(ProfileCodeFriendly).Analyze("VSCode")
	assert.Equal(t, []string{"vscode"}, terms(tokens))
}

func TestKeywordAnalyzer(t *testing.T) {
	tokens := Get(ProfileKeyword).Analyze("https://ex.com/docs/")
	require.Len(t, tokens, 1)
	assert.Equal(t, "https://ex.com/docs/", tokens[0].Text)

	assert.Empty(t, Get(ProfileKeyword).Analyze("   "))
}

func TestPathAnalyzer(t *testing.T) {
	tokens := Get(ProfilePath).Analyze("/Docs/Topics/Settings")
	assert.Equal(t, []string{"docs", "topics", "settings"}, terms(tokens))

	// No slash falls through to the default profile.
	tokens = Get(ProfilePath).Analyze("Running")
	assert.Equal(t, []string{"runn"}, terms(tokens))
}

func TestUnknownProfileFallsBack(t *testing.T) {
	assert.Equal(t, ProfileEnglish, Get("no-such-profile").Name())
}
