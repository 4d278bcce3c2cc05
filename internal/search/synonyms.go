package search

import "sort"

// defaultThesaurus maps between common documentation vocabulary. The
// lookup is bi-directional: a term matches both its key entries and any
// list it appears in.
var defaultThesaurus = map[string][]string{
	"config":    {"configuration", "settings"},
	"delete":    {"remove", "drop"},
	"docs":      {"documentation"},
	"error":     {"exception", "failure"},
	"install":   {"setup"},
	"parameter": {"argument", "option"},
	"start":     {"begin", "launch"},
}

// ExpandSynonyms returns the synonyms of term from the thesaurus in
// deterministic order, excluding term itself. A nil thesaurus uses the
// built-in one.
func ExpandSynonyms(term string, thesaurus map[string][]string) []string {
	if thesaurus == nil {
		thesaurus = defaultThesaurus
	}

	seen := map[string]struct{}{term: {}}
	var out []string
	add := func(s string) {
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, syn := range thesaurus[term] {
		add(syn)
	}
	// Reverse direction: any key whose list contains the term.
	keys := make([]string, 0, len(thesaurus))
	for k := range thesaurus {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, syn := range thesaurus[k] {
			if syn == term {
				add(k)
				break
			}
		}
	}
	return out
}
