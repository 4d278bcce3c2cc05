package search

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"git.home.luguber.info/inful/docsearch/internal/index"
	"git.home.luguber.info/inful/docsearch/internal/segment"
)

// Hit is one ranked result.
type Hit struct {
	DocID   string
	Score   float64
	Factors RankingFactors
}

// RankingFactors explains how a hit's score came together; it feeds the
// per-result match trace.
type RankingFactors struct {
	BM25           float64  `json:"bm25"`
	ProximityBonus float64  `json:"proximity_bonus,omitempty"`
	LanguageBoost  float64  `json:"language_boost,omitempty"`
	VerbatimBonus  float64  `json:"verbatim_bonus,omitempty"`
	FuzzyTerms     []string `json:"fuzzy_terms,omitempty"`
	SynonymTerms   []string `json:"synonym_terms,omitempty"`
}

// Engine scores queries against a sealed segment.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given ranking config.
func NewEngine(cfg Config) *Engine {
	if cfg.K1 == 0 {
		cfg.K1 = 1.2
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	return &Engine{cfg: cfg}
}

// queryTerm is one scored term of one field.
type queryTerm struct {
	text    string
	base    bool // came directly from the query, not a synonym
	synonym bool
}

// Score runs the ranked query and returns at most limit hits in
// non-increasing score order.
func (e *Engine) Score(seg *segment.Segment, rawQuery string, limit int) ([]Hit, error) {
	if seg == nil {
		return nil, fmt.Errorf("segment is nil")
	}
	if strings.TrimSpace(rawQuery) == "" || limit <= 0 {
		return nil, nil
	}

	schema := seg.Schema()
	fieldTerms, bodyTermCount := e.analyzeQuery(schema, rawQuery)

	state := &scoreState{
		scores:        map[string]float64{},
		bodyPositions: map[string]map[int][]uint32{},
		lengths:       map[string]int{},
		factors:       map[string]*RankingFactors{},
	}

	n := seg.DocCount()
	if n == 0 {
		return nil, nil
	}

	for _, field := range schema.IndexedTextFields() {
		terms := fieldTerms[field.Name]
		if len(terms) == 0 {
			continue
		}
		if err := e.scoreField(seg, field, terms, n, state); err != nil {
			return nil, err
		}
	}
	if len(state.scores) == 0 {
		return nil, nil
	}

	e.applyModifiers(seg, rawQuery, bodyTermCount, state)

	return topK(state, limit), nil
}

// analyzeQuery builds field -> ordered unique terms. The body field's
// base terms are expanded with synonyms; the base count is returned so
// fuzzy fallback is attempted for base terms only.
func (e *Engine) analyzeQuery(schema index.Schema, rawQuery string) (map[string][]queryTerm, int) {
	fieldTerms := make(map[string][]queryTerm)
	bodyTermCount := 0

	for _, field := range schema.IndexedTextFields() {
		analyzer := schema.AnalyzerFor(field, e.cfg.AnalyzerProfile)
		seen := map[string]struct{}{}
		var terms []queryTerm
		for _, tok := range analyzer.Analyze(rawQuery) {
			if _, dup := seen[tok.Text]; dup {
				continue
			}
			seen[tok.Text] = struct{}{}
			terms = append(terms, queryTerm{text: tok.Text, base: true})
		}

		if field.Name == index.FieldBody {
			bodyTermCount = len(terms)
			base := append([]queryTerm(nil), terms...)
			for _, qt := range base {
				for _, syn := range ExpandSynonyms(qt.text, e.cfg.Synonyms) {
					for _, tok := range analyzer.Analyze(syn) {
						if _, dup := seen[tok.Text]; dup {
							continue
						}
						seen[tok.Text] = struct{}{}
						terms = append(terms, queryTerm{text: tok.Text, synonym: true})
					}
				}
			}
		}
		fieldTerms[field.Name] = terms
	}
	return fieldTerms, bodyTermCount
}

type scoreState struct {
	scores map[string]float64
	// bodyPositions[docID][bodyTermIndex] = positions on the body field
	bodyPositions map[string]map[int][]uint32
	lengths       map[string]int
	factors       map[string]*RankingFactors
}

func (st *scoreState) factorsFor(docID string) *RankingFactors {
	f := st.factors[docID]
	if f == nil {
		f = &RankingFactors{}
		st.factors[docID] = f
	}
	return f
}

func (e *Engine) scoreField(seg *segment.Segment, field index.Field, terms []queryTerm, n int, st *scoreState) error {
	avgdl, err := seg.AvgFieldLength(field.Name)
	if err != nil {
		return err
	}
	if avgdl == 0 {
		return nil
	}
	boost := field.Boost
	if override, ok := e.cfg.Boosts[field.Name]; ok {
		boost = override
	}

	var vocab []string
	bodyTermIdx := -1
	for _, qt := range terms {
		if field.Name == index.FieldBody && qt.base {
			bodyTermIdx++
		}

		postings, err := seg.Postings(field.Name, qt.text)
		if err != nil {
			return err
		}
		discount := 1.0
		matchedTerm := qt.text

		// Fuzzy fallback only for base terms with an empty postings list.
		if len(postings) == 0 && qt.base && field.Type == index.FieldTypeText {
			maxDist := MaxEditDistance(qt.text)
			if maxDist == 0 {
				continue
			}
			if vocab == nil {
				if vocab, err = seg.Vocabulary(field.Name); err != nil {
					return err
				}
			}
			matches := FindFuzzyMatches(qt.text, vocab, maxDist)
			if len(matches) == 0 {
				continue
			}
			matchedTerm = matches[0].Term
			discount = fuzzyDiscount
			if postings, err = seg.Postings(field.Name, matchedTerm); err != nil {
				return err
			}
		}
		if len(postings) == 0 {
			continue
		}

		df := len(postings)
		// Robertson idf, floored at a tiny positive value: the raw form
		// goes negative when a term hits more than half of the corpus,
		// and the post-ranking modifiers still need a nonzero base to
		// order such documents.
		idf := math.Log((float64(n) - float64(df) + 0.5) / (float64(df) + 0.5))
		if idf < idfFloor {
			idf = idfFloor
		}

		for _, posting := range postings {
			dl, err := e.fieldLength(seg, field.Name, posting.DocID, st)
			if err != nil {
				return err
			}
			tf := float64(posting.TF())
			tfNorm := (tf * (e.cfg.K1 + 1)) / (tf + e.cfg.K1*(1-e.cfg.B+e.cfg.B*float64(dl)/avgdl))
			contribution := idf * tfNorm * boost * discount

			st.scores[posting.DocID] += contribution
			f := st.factorsFor(posting.DocID)
			f.BM25 += contribution
			if discount != 1.0 {
				f.FuzzyTerms = appendUnique(f.FuzzyTerms, matchedTerm)
			}
			if qt.synonym {
				f.SynonymTerms = appendUnique(f.SynonymTerms, matchedTerm)
			}

			if field.Name == index.FieldBody && qt.base && len(posting.Positions) > 0 {
				byTerm := st.bodyPositions[posting.DocID]
				if byTerm == nil {
					byTerm = map[int][]uint32{}
					st.bodyPositions[posting.DocID] = byTerm
				}
				byTerm[bodyTermIdx] = posting.Positions
			}
		}
	}
	return nil
}

func (e *Engine) fieldLength(seg *segment.Segment, field, docID string, st *scoreState) (int, error) {
	key := field + "\x00" + docID
	if dl, ok := st.lengths[key]; ok {
		return dl, nil
	}
	dl, err := seg.FieldLength(field, docID)
	if err != nil {
		return 0, err
	}
	st.lengths[key] = dl
	return dl, nil
}

// applyModifiers applies the post-ranking score modifiers: phrase
// proximity, language boost and the verbatim-match bonus.
func (e *Engine) applyModifiers(seg *segment.Segment, rawQuery string, bodyTermCount int, st *scoreState) {
	queryLower := strings.ToLower(strings.TrimSpace(rawQuery))

	for docID := range st.scores {
		f := st.factorsFor(docID)

		if e.cfg.EnableProximityBonus && bodyTermCount >= 2 {
			if byTerm := st.bodyPositions[docID]; len(byTerm) == bodyTermCount {
				if bonus := proximityBonus(byTerm, bodyTermCount); bonus > 1.0 {
					st.scores[docID] *= bonus
					f.ProximityBonus = bonus
				}
			}
		}

		needsBag := e.cfg.EnableLanguageBoost || queryLower != ""
		if !needsBag {
			continue
		}
		bag, err := seg.Document(docID)
		if err != nil || bag == nil {
			continue
		}
		if e.cfg.EnableLanguageBoost {
			if lang, _ := bag[index.FieldLanguage].(string); lang == "en" {
				st.scores[docID] *= languageBoostFactor
				f.LanguageBoost = languageBoostFactor
			}
		}
		if body, _ := bag[index.FieldBody].(string); body != "" && queryLower != "" {
			if strings.Contains(strings.ToLower(body), queryLower) {
				st.scores[docID] += verbatimBonus
				f.VerbatimBonus = verbatimBonus
			}
		}
	}
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}

// topK selects the limit best hits. A heap is used when the limit is
// much smaller than the candidate set; otherwise a full sort wins.
func topK(st *scoreState, limit int) []Hit {
	hits := make([]Hit, 0, len(st.scores))
	for docID, score := range st.scores {
		hits = append(hits, Hit{DocID: docID, Score: score, Factors: *st.factorsFor(docID)})
	}

	if limit*4 < len(hits) {
		return heapTopK(hits, limit)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
