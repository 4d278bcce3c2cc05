package analysis

// stopwords is the fixed English stopword set shared by all profiles.
// Changing it invalidates existing segments, so treat it as frozen.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "been": {}, "but": {}, "by": {}, "can": {}, "could": {},
	"did": {}, "do": {}, "does": {}, "for": {}, "from": {}, "had": {},
	"has": {}, "have": {}, "he": {}, "her": {}, "his": {}, "how": {},
	"if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"may": {}, "must": {}, "no": {}, "not": {}, "of": {}, "on": {},
	"or": {}, "our": {}, "she": {}, "should": {}, "that": {},
	"the": {}, "their": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "those": {}, "to": {}, "was": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "who": {}, "will": {}, "with": {}, "would": {},
	"you": {}, "your": {},
}

// IsStopword reports whether a lowercased term is in the fixed set.
func IsStopword(term string) bool {
	_, ok := stopwords[term]
	return ok
}
