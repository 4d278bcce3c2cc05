// Package search implements BM25F ranking over a sealed segment, with
// synonym expansion, fuzzy fallback, phrase proximity and the
// sentence-aware snippet builder.
package search

// Config carries the tenant-tunable ranking constants.
type Config struct {
	K1 float64
	B  float64

	// Boosts overrides schema field boosts by field name.
	Boosts map[string]float64

	// EnableProximityBonus turns on the phrase proximity multiplier for
	// multi-token queries.
	EnableProximityBonus bool

	// EnableLanguageBoost multiplies English documents by 1.1. This is
	// a deliberate bias for mixed-language corpora; disable it for
	// single-language tenants.
	EnableLanguageBoost bool

	// AnalyzerProfile is the tenant's default text analyzer.
	AnalyzerProfile string

	// Synonyms is an optional static thesaurus; lookups run in both
	// directions.
	Synonyms map[string][]string
}

// DefaultConfig returns the standard BM25 constants.
func DefaultConfig() Config {
	return Config{
		K1:                   1.2,
		B:                    0.75,
		EnableProximityBonus: true,
		EnableLanguageBoost:  true,
	}
}

const (
	languageBoostFactor = 1.1
	fuzzyDiscount       = 0.8
	verbatimBonus       = 0.05
	perfectPhraseBonus  = 1.5
	maxScatter          = 3.0
	idfFloor            = 1e-9
)
