package search

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsearch/internal/analysis"
	"git.home.luguber.info/inful/docsearch/internal/index"
	"git.home.luguber.info/inful/docsearch/internal/segment"
)

type testDoc struct {
	url   string
	title string
	body  string
	lang  string
}

func buildSegment(t *testing.T, docs []testDoc) *segment.Segment {
	t.Helper()
	store, err := segment.NewStore(t.TempDir(), 0)
	require.NoError(t, err)

	schema := index.DefaultSchema()
	b := segment.NewBuilder("test-seg", schema)
	english := analysis.Get(analysis.ProfileEnglish)

	for _, doc := range docs {
		lang := doc.lang
		if lang == "" {
			lang = "en"
		}
		tokens := map[string][]analysis.Token{
			index.FieldTitle: english.Analyze(doc.title),
			index.FieldBody:  english.Analyze(doc.body),
		}
		stored := map[string]any{
			index.FieldURL:      doc.url,
			index.FieldTitle:    doc.title,
			index.FieldBody:     doc.body,
			index.FieldLanguage: lang,
		}
		require.NoError(t, b.AddDocument(doc.url, tokens, stored))
	}
	_, err = store.Save(b, nil)
	require.NoError(t, err)

	seg, err := store.Load("test-seg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Close() })
	return seg
}

func plainConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableLanguageBoost = false
	cfg.EnableProximityBonus = false
	return cfg
}

func TestScoresNonIncreasing(t *testing.T) {
	docs := []testDoc{
		{url: "a", title: "Settings", body: "settings settings settings everywhere"},
		{url: "b", title: "Other", body: "a single mention of settings"},
		{url: "c", title: "Unrelated", body: "settings appear here too with more words around them"},
	}
	seg := buildSegment(t, docs)

	hits, err := NewEngine(plainConfig()).Score(seg, "settings", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

// Field boost scenario: identical bodies, only one doc carries the term
// in its title. The title doc must rank first.
func TestFieldBoostPrefersTitleMatch(t *testing.T) {
	docs := []testDoc{
		{url: "titled", title: "Deployment Guide", body: "how to run the application in production"},
		{url: "plain", title: "Miscellaneous", body: "how to run the application in production"},
	}
	seg := buildSegment(t, docs)

	hits, err := NewEngine(plainConfig()).Score(seg, "deployment", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "titled", hits[0].DocID)
}

// Phrase proximity scenario: the exact phrase earns the 1.5x multiplier,
// terms twenty tokens apart earn nothing.
func TestPhraseProximityBonus(t *testing.T) {
	filler := ""
	for i := 0; i < 20; i++ {
		filler += fmt.Sprintf("word%d ", i)
	}
	docs := []testDoc{
		{url: "phrase", title: "A", body: "change the settings configuration here"},
		{url: "scattered", title: "B", body: "settings " + filler + "configuration"},
	}
	seg := buildSegment(t, docs)

	cfg := plainConfig()
	cfg.EnableProximityBonus = true
	hits, err := NewEngine(cfg).Score(seg, "settings configuration", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "phrase", hits[0].DocID)
	assert.Equal(t, perfectPhraseBonus, hits[0].Factors.ProximityBonus)
	assert.Zero(t, hits[1].Factors.ProximityBonus)
}

// Fuzzy fallback scenario: djagno is distance 2 from django.
func TestFuzzyFallback(t *testing.T) {
	docs := []testDoc{
		{url: "a", title: "Django", body: "django is a web framework for perfectionists"},
	}
	seg := buildSegment(t, docs)

	hits, err := NewEngine(plainConfig()).Score(seg, "djagno", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Factors.FuzzyTerms, "django")

	// The fuzzy contribution carries the 0.8 discount.
	exact, err := NewEngine(plainConfig()).Score(seg, "django", 10)
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.InDelta(t, exact[0].Factors.BM25*fuzzyDiscount, hits[0].Factors.BM25, 1e-9)
}

func TestLanguageBoost(t *testing.T) {
	docs := []testDoc{
		{url: "en-doc", title: "Guide", body: "identical body text for both documents", lang: "en"},
		{url: "de-doc", title: "Guide", body: "identical body text for both documents", lang: "de"},
	}
	seg := buildSegment(t, docs)

	cfg := plainConfig()
	cfg.EnableLanguageBoost = true
	hits, err := NewEngine(cfg).Score(seg, "identical", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "en-doc", hits[0].DocID)
	assert.Equal(t, languageBoostFactor, hits[0].Factors.LanguageBoost)
	assert.Zero(t, hits[1].Factors.LanguageBoost)
}

func TestVerbatimBonus(t *testing.T) {
	docs := []testDoc{
		{url: "verbatim", title: "A", body: "the adaptive rate limiter backs off"},
		{url: "partial", title: "B", body: "limiter adaptive rate references scattered"},
	}
	seg := buildSegment(t, docs)

	cfg := plainConfig()
	hits, err := NewEngine(cfg).Score(seg, "adaptive rate limiter", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	var verbatim *Hit
	for i := range hits {
		if hits[i].DocID == "verbatim" {
			verbatim = &hits[i]
		}
	}
	require.NotNil(t, verbatim)
	assert.Equal(t, verbatimBonus, verbatim.Factors.VerbatimBonus)
}

func TestEmptyQueryAndNoMatches(t *testing.T) {
	seg := buildSegment(t, []testDoc{{url: "a", title: "T", body: "content"}})
	engine := NewEngine(plainConfig())

	hits, err := engine.Score(seg, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = engine.Score(seg, "zz", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLimitRespected(t *testing.T) {
	var docs []testDoc
	for i := 0; i < 30; i++ {
		docs = append(docs, testDoc{
			url:   fmt.Sprintf("doc-%02d", i),
			title: "T",
			body:  "shared token plus some padding words here",
		})
	}
	seg := buildSegment(t, docs)

	hits, err := NewEngine(plainConfig()).Score(seg, "shared", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

// The idf term follows the Robertson form when the term is rare: with
// tf=1 and dl=avgdl the tf normalization collapses to 1, leaving
// idf times the body boost.
func TestIDFRobertsonForm(t *testing.T) {
	docs := []testDoc{
		{url: "a", title: "Docs", body: "zebra kernel compiler harbor"},
		{url: "b", title: "Docs", body: "window engine traffic signal"},
		{url: "c", title: "Docs", body: "notebook pencil eraser ruler"},
		{url: "d", title: "Docs", body: "ocean mountain valley river"},
	}
	seg := buildSegment(t, docs)

	hits, err := NewEngine(plainConfig()).Score(seg, "kernel", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	want := math.Log((4 - 1 + 0.5) / 1.5)
	assert.InDelta(t, want, hits[0].Factors.BM25, 1e-9)
}

// A term in every document would drive the Robertson idf negative; the
// floor keeps contributions non-negative so modifiers decide order.
func TestIDFFlooredForUbiquitousTerms(t *testing.T) {
	docs := []testDoc{
		{url: "a", title: "Docs", body: "shared term in every document"},
		{url: "b", title: "Docs", body: "shared term in every document"},
	}
	seg := buildSegment(t, docs)

	hits, err := NewEngine(plainConfig()).Score(seg, "shared", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
	}
}

func TestSynonymExpansionReachesDocs(t *testing.T) {
	docs := []testDoc{
		{url: "syn", title: "T", body: "the configuration file lives at the root"},
	}
	seg := buildSegment(t, docs)

	// "config" itself is absent; the thesaurus bridges to configuration.
	hits, err := NewEngine(plainConfig()).Score(seg, "config", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.NotEmpty(t, hits[0].Factors.SynonymTerms)
}
