package analysis

import "regexp"

// wordRe matches alphanumeric words.
var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// codeWordRe additionally keeps `_` and `.` inside tokens so
// identifiers like settings.DEBUG and snake_case survive.
var codeWordRe = regexp.MustCompile(`[a-zA-Z0-9_][a-zA-Z0-9_.]*`)

// camelRe matches one CamelCase hump. A token only splits when the
// humps cover it completely, so VSCode (consecutive capitals) does not
// split; tests pin that behavior.
var camelRe = regexp.MustCompile(`[A-Z][a-z]+`)

// RegexpTokenizer is the default word tokenizer.
type RegexpTokenizer struct{}

func (RegexpTokenizer) Tokenize(text string) []Token {
	return matchTokens(wordRe, text)
}

// CodeTokenizer keeps `_` and `.` in tokens and emits CamelCase
// subwords as extra tokens after the original.
type CodeTokenizer struct{}

func (CodeTokenizer) Tokenize(text string) []Token {
	raw := matchTokens(codeWordRe, text)
	out := make([]Token, 0, len(raw))
	pos := 0
	for _, tok := range raw {
		tok.Position = pos
		out = append(out, tok)
		pos++
		for _, sub := range SplitCamelCase(tok.Text) {
			out = append(out, Token{Text: sub, Position: pos, StartChar: tok.StartChar, EndChar: tok.EndChar})
			pos++
		}
	}
	return out
}

// SplitCamelCase returns the humps of a CamelCase word, or nil when the
// humps do not cover the whole word (e.g. VSCode, lowercase words).
func SplitCamelCase(word string) []string {
	idx := camelRe.FindAllStringIndex(word, -1)
	if len(idx) < 2 {
		return nil
	}
	covered := 0
	parts := make([]string, 0, len(idx))
	for _, span := range idx {
		if span[0] != covered {
			return nil
		}
		parts = append(parts, word[span[0]:span[1]])
		covered = span[1]
	}
	if covered != len(word) {
		return nil
	}
	return parts
}

func matchTokens(re *regexp.Regexp, text string) []Token {
	idx := re.FindAllStringIndex(text, -1)
	tokens := make([]Token, 0, len(idx))
	for i, span := range idx {
		tokens = append(tokens, Token{
			Text:      text[span[0]:span[1]],
			Position:  i,
			StartChar: span[0],
			EndChar:   span[1],
		})
	}
	return tokens
}
