// Package analysis provides the tokenization pipelines used by the
// indexer and the search engine. An analyzer is a tokenizer followed by
// an ordered list of filters; positions are re-indexed after filtering
// so callers always see dense positions.
package analysis

// Token is one unit of analyzed text.
type Token struct {
	Text      string
	Position  int
	StartChar int
	EndChar   int
}

// Tokenizer splits raw text into tokens with byte offsets.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// Filter transforms or drops tokens. Filters must not reorder tokens.
type Filter interface {
	Apply(tokens []Token) []Token
}

// Analyzer produces the final, dense-positioned token stream for a
// field or query.
type Analyzer interface {
	Name() string
	Analyze(text string) []Token
}
