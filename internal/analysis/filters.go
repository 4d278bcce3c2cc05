package analysis

import "strings"

// LowercaseFilter lowercases every token.
type LowercaseFilter struct{}

func (LowercaseFilter) Apply(tokens []Token) []Token {
	for i := range tokens {
		tokens[i].Text = strings.ToLower(tokens[i].Text)
	}
	return tokens
}

// StopwordFilter drops tokens from the fixed stopword set.
type StopwordFilter struct{}

func (StopwordFilter) Apply(tokens []Token) []Token {
	out := tokens[:0]
	for _, tok := range tokens {
		if IsStopword(tok.Text) {
			continue
		}
		out = append(out, tok)
	}
	return out
}
