package analysis

import "strings"

// The stemmer is a fixed two-table suffix stripper in the spirit of
// Porter's algorithm. Complex suffixes rewrite first, then one simple
// suffix strips. The tables are frozen: ranking stability across
// reimplementations depends on them (running -> runn, testing -> test,
// organization -> organize).

type suffixRule struct {
	suffix      string
	replacement string
}

// complexRules are tried longest-first and at most one applies.
var complexRules = []suffixRule{
	{"ization", "ize"},
	{"ational", "ate"},
	{"fulness", "ful"},
	{"ousness", "ous"},
	{"iveness", "ive"},
	{"tional", "tion"},
	{"biliti", "ble"},
	{"ation", "ate"},
	{"alism", "al"},
	{"aliti", "al"},
	{"iviti", "ive"},
	{"ousli", "ous"},
	{"entli", "ent"},
	{"fulli", "ful"},
}

// simpleSuffixes strip without replacement, longest first.
var simpleSuffixes = []string{
	"ement", "ment", "ness", "able", "ible",
	"ing", "ity", "ies", "ful",
	"ed", "es", "ly", "s",
}

const minStemLength = 2

// Stem reduces a lowercased term to its stem. It never reduces a term
// below two characters and leaves unknown shapes untouched.
func Stem(term string) string {
	if len(term) <= minStemLength {
		return term
	}

	for _, rule := range complexRules {
		if strings.HasSuffix(term, rule.suffix) {
			stem := term[:len(term)-len(rule.suffix)] + rule.replacement
			if len(stem) >= minStemLength {
				return stem
			}
			return term
		}
	}

	for _, suffix := range simpleSuffixes {
		if strings.HasSuffix(term, suffix) {
			stem := term[:len(term)-len(suffix)]
			if len(stem) >= minStemLength {
				return stem
			}
			return term
		}
	}

	return term
}

// StemFilter applies Stem to every token.
type StemFilter struct{}

func (StemFilter) Apply(tokens []Token) []Token {
	for i := range tokens {
		tokens[i].Text = Stem(tokens[i].Text)
	}
	return tokens
}
