package analysis

import "strings"

// Named analyzer profiles. Tenants select one via search_config.
const (
	ProfileDefault       = "default"
	ProfileEnglish       = "english"
	ProfileEnglishNoStem = "english-nostem"
	ProfileCodeFriendly  = "code-friendly"
	ProfileKeyword       = "keyword"
	ProfilePath          = "path"
)

// pipeline is the standard tokenizer+filters analyzer.
type pipeline struct {
	name      string
	tokenizer Tokenizer
	filters   []Filter
}

func (p *pipeline) Name() string { return p.name }

func (p *pipeline) Analyze(text string) []Token {
	tokens := p.tokenizer.Tokenize(text)
	for _, f := range p.filters {
		tokens = f.Apply(tokens)
	}
	return reindex(tokens)
}

// reindex makes positions dense after filters dropped tokens.
func reindex(tokens []Token) []Token {
	for i := range tokens {
		tokens[i].Position = i
	}
	return tokens
}

// keywordAnalyzer emits the whole input as a single token.
type keywordAnalyzer struct{}

func (keywordAnalyzer) Name() string { return ProfileKeyword }

func (keywordAnalyzer) Analyze(text string) []Token {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []Token{{Text: text, Position: 0, StartChar: 0, EndChar: len(text)}}
}

// pathAnalyzer splits slash-delimited strings into lowercased segments
// and falls through to the default profile otherwise.
type pathAnalyzer struct {
	fallback Analyzer
}

func (pathAnalyzer) Name() string { return ProfilePath }

func (p pathAnalyzer) Analyze(text string) []Token {
	if !strings.Contains(text, "/") {
		return p.fallback.Analyze(text)
	}
	tokens := make([]Token, 0, 4)
	offset := 0
	for _, seg := range strings.Split(text, "/") {
		if seg != "" {
			tokens = append(tokens, Token{
				Text:      strings.ToLower(seg),
				StartChar: offset,
				EndChar:   offset + len(seg),
			})
		}
		offset += len(seg) + 1
	}
	return reindex(tokens)
}

// Get returns the analyzer for a named profile. Unknown profiles fall
// back to the default pipeline so a bad tenant config degrades instead
// of failing the index build.
func Get(profile string) Analyzer {
	switch profile {
	case ProfileEnglishNoStem:
		return &pipeline{
			name:      ProfileEnglishNoStem,
			tokenizer: RegexpTokenizer{},
			filters:   []Filter{LowercaseFilter{}, StopwordFilter{}},
		}
	case ProfileCodeFriendly:
		return &pipeline{
			name:      ProfileCodeFriendly,
			tokenizer: CodeTokenizer{},
			filters:   []Filter{LowercaseFilter{}, StopwordFilter{}},
		}
	case ProfileKeyword:
		return keywordAnalyzer{}
	case ProfilePath:
		return pathAnalyzer{fallback: Get(ProfileDefault)}
	case ProfileDefault, ProfileEnglish, "":
		fallthrough
	default:
		return &pipeline{
			name:      ProfileEnglish,
			tokenizer: RegexpTokenizer{},
			filters:   []Filter{LowercaseFilter{}, StopwordFilter{}, StemFilter{}},
		}
	}
}
