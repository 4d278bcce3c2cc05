package tenant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/docsearch/internal/analysis"
	"git.home.luguber.info/inful/docsearch/internal/index"
	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/search"
)

// DefaultMaxResults caps a search when the caller does not.
const DefaultMaxResults = 20

// MatchTrace explains how one result matched.
type MatchTrace struct {
	Stage          int                   `json:"stage"`
	StageName      string                `json:"stage_name"`
	QueryVariant   string                `json:"query_variant"`
	MatchReason    string                `json:"match_reason"`
	RipgrepFlags   string                `json:"ripgrep_flags"`
	RankingFactors search.RankingFactors `json:"ranking_factors"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	Score      float64    `json:"score"`
	MatchTrace MatchTrace `json:"match_trace"`
}

// SearchResponse is the full search reply. Errors surface in the Error
// field; the call itself never fails.
type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	Query        string         `json:"query"`
	Error        string         `json:"error,omitempty"`
}

// Search runs a ranked query against the active segment. wordMatch is
// informational only; ranking ignores it.
func (rt *Runtime) Search(ctx context.Context, query string, maxResults int, wordMatch bool) (resp SearchResponse) {
	resp = SearchResponse{Results: []SearchResult{}, Query: query}
	defer func() {
		if r := recover(); r != nil {
			resp.Error = fmt.Sprintf("search failed: %v", r)
			resp.Results = []SearchResult{}
			resp.TotalResults = 0
			rt.logger.Error("search panic", logfields.Query(query), logfields.Reason(fmt.Sprint(r)))
		}
	}()

	start := time.Now()
	rt.rec.IncSearchQueries(rt.cfg.Codename)
	defer func() {
		rt.rec.ObserveSearchDuration(rt.cfg.Codename, time.Since(start))
	}()

	if !rt.cfg.Search.Enabled {
		resp.Error = "search is disabled for this tenant"
		return resp
	}
	if strings.TrimSpace(query) == "" {
		return resp
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	seg := rt.activeSegment()
	if seg == nil {
		// No segment built yet; an empty corpus is not an error.
		return resp
	}

	hits, err := rt.engine.Score(seg, query, maxResults)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	terms := queryTerms(rt.cfg.Search.AnalyzerProfile, query)
	variant := strings.Join(terms, " ")
	flags := ""
	if wordMatch {
		flags = "--word-regexp"
	}

	for _, hit := range hits {
		stored, err := seg.Document(hit.DocID)
		if err != nil {
			rt.logger.Warn("stored document missing", logfields.URL(hit.DocID), logfields.Error(err))
			continue
		}
		body := storedString(stored, index.FieldBody)
		result := SearchResult{
			URL:     storedString(stored, index.FieldURL),
			Title:   storedString(stored, index.FieldTitle),
			Snippet: search.BuildSnippet(body, terms, rt.snippet),
			Score:   hit.Score,
			MatchTrace: MatchTrace{
				Stage:          1,
				StageName:      "bm25_index",
				QueryVariant:   variant,
				MatchReason:    matchReason(hit.Factors),
				RipgrepFlags:   flags,
				RankingFactors: hit.Factors,
			},
		}
		if result.URL == "" {
			result.URL = hit.DocID
		}
		resp.Results = append(resp.Results, result)
	}
	resp.TotalResults = len(resp.Results)
	return resp
}

// queryTerms analyzes the raw query with the tenant profile for snippet
// highlighting.
func queryTerms(profile, query string) []string {
	tokens := analysis.Get(profile).Analyze(query)
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, tok.Text)
	}
	return terms
}

func matchReason(f search.RankingFactors) string {
	switch {
	case len(f.FuzzyTerms) > 0:
		return "fuzzy_match"
	case len(f.SynonymTerms) > 0:
		return "synonym_match"
	case f.VerbatimBonus > 0:
		return "verbatim_match"
	default:
		return "term_match"
	}
}

func storedString(bag map[string]any, key string) string {
	if v, ok := bag[key].(string); ok {
		return v
	}
	return ""
}
