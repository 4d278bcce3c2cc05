// Package indexer builds immutable search segments from a tenant's
// document tree. Segment ids are corpus fingerprints, so rebuilding an
// unchanged corpus is a no-op.
package indexer

import (
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/docsearch/internal/analysis"
	"git.home.luguber.info/inful/docsearch/internal/crawler"
	"git.home.luguber.info/inful/docsearch/internal/index"
	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/segment"
	"git.home.luguber.info/inful/docsearch/internal/storage"
)

// SourceType of the tenant feeding this indexer.
const (
	SourceOnline     = "online"
	SourceGit        = "git"
	SourceFilesystem = "filesystem"
)

// TenantContext carries everything the indexer needs to know about its
// tenant.
type TenantContext struct {
	Codename             string
	DocsRoot             string
	SegmentsDir          string
	SourceType           string
	URLWhitelistPrefixes []string
	URLBlacklistPrefixes []string
	AnalyzerProfile      string
}

// AuditResult reports whether the persisted segment still matches the
// document tree.
type AuditResult struct {
	Fingerprint      string `json:"fingerprint"`
	CurrentSegmentID string `json:"current_segment_id"`
	NeedsRebuild     bool   `json:"needs_rebuild"`
}

// BuildOptions narrow a build run.
type BuildOptions struct {
	// ChangedOnly limits the segment to documents named in ChangedPaths
	// (relative markdown paths).
	ChangedOnly  bool
	ChangedPaths []string
	// Limit caps the number of documents indexed; 0 means no cap.
	Limit int
	// Persist writes the segment to the store. When false the build is
	// a dry run.
	Persist bool
}

// BuildResult summarizes a build run.
type BuildResult struct {
	DocumentsIndexed  int      `json:"documents_indexed"`
	DocumentsSkipped  int      `json:"documents_skipped"`
	Errors            []string `json:"errors,omitempty"`
	SegmentIDs        []string `json:"segment_ids,omitempty"`
	SegmentPaths      []string `json:"segment_paths,omitempty"`
}

// Indexer builds segments for one tenant.
type Indexer struct {
	tenant TenantContext
	schema index.Schema
	store  *segment.Store
	repo   *storage.Repository
	filter crawler.URLFilter
	logger *slog.Logger
}

// New creates an Indexer over the tenant's docs_root and segment store.
func New(tenant TenantContext, store *segment.Store, logger *slog.Logger) (*Indexer, error) {
	repo, err := storage.NewRepository(tenant.DocsRoot)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		tenant: tenant,
		schema: index.DefaultSchema(),
		store:  store,
		repo:   repo,
		filter: crawler.URLFilter{
			WhitelistPrefixes: tenant.URLWhitelistPrefixes,
			BlacklistPrefixes: tenant.URLBlacklistPrefixes,
		},
		logger: logger,
	}, nil
}

// FingerprintAudit computes the current corpus fingerprint and compares
// it against the latest persisted segment id.
func (ix *Indexer) FingerprintAudit() (AuditResult, error) {
	docs, err := ix.discover()
	if err != nil {
		return AuditResult{}, err
	}

	summaries := make([]index.DocSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, d.summary())
	}
	fingerprint, err := index.Fingerprint(ix.schema, summaries)
	if err != nil {
		return AuditResult{}, err
	}

	currentID, err := ix.store.LatestSegmentID()
	if err != nil {
		return AuditResult{}, err
	}
	return AuditResult{
		Fingerprint:      fingerprint,
		CurrentSegmentID: currentID,
		NeedsRebuild:     currentID != fingerprint,
	}, nil
}

// BuildSegment indexes the tenant's documents into a new segment. With
// opts.Persist the segment lands in the store and becomes the latest;
// saving an id that already exists is a no-op.
func (ix *Indexer) BuildSegment(opts BuildOptions) (BuildResult, error) {
	docs, err := ix.discover()
	if err != nil {
		return BuildResult{}, err
	}

	result := BuildResult{}

	if opts.ChangedOnly && len(opts.ChangedPaths) > 0 {
		changed := make(map[string]bool, len(opts.ChangedPaths))
		for _, p := range opts.ChangedPaths {
			changed[p] = true
		}
		var kept []docEntry
		for _, d := range docs {
			if changed[d.RelPath] {
				kept = append(kept, d)
			} else {
				result.DocumentsSkipped++
			}
		}
		docs = kept
	}

	if opts.Limit > 0 && len(docs) > opts.Limit {
		result.DocumentsSkipped += len(docs) - opts.Limit
		docs = docs[:opts.Limit]
	}

	summaries := make([]index.DocSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, d.summary())
	}
	segmentID, err := index.Fingerprint(ix.schema, summaries)
	if err != nil {
		return BuildResult{}, err
	}

	builder := segment.NewBuilder(segmentID, ix.schema)
	for _, d := range docs {
		if err := ix.addDocument(builder, d); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", d.RelPath, err))
			result.DocumentsSkipped++
			continue
		}
		result.DocumentsIndexed++
	}

	result.SegmentIDs = []string{segmentID}
	if !opts.Persist {
		return result, nil
	}

	path, err := ix.store.Save(builder, nil)
	if err != nil {
		return BuildResult{}, err
	}
	result.SegmentPaths = []string{path}

	ix.logger.Info("segment built",
		logfields.Tenant(ix.tenant.Codename),
		logfields.Segment(segmentID),
		logfields.Count(result.DocumentsIndexed))
	return result, nil
}

// addDocument analyzes one document's fields and feeds them to the
// builder.
func (ix *Indexer) addDocument(builder *segment.Builder, d docEntry) error {
	fields := index.Extract(d.URL, d.RelPath, d.Markdown, d.Meta)
	analyzed := fields.AnalyzedText()

	tokens := make(map[string][]analysis.Token)
	for _, field := range ix.schema.IndexedTextFields() {
		text := analyzed[field.Name]
		if text == "" {
			continue
		}
		if field.Type == index.FieldTypeKeyword {
			tokens[field.Name] = analyzeKeywordValues(text)
			continue
		}
		analyzer := ix.schema.AnalyzerFor(field, ix.tenant.AnalyzerProfile)
		if toks := analyzer.Analyze(text); len(toks) > 0 {
			tokens[field.Name] = toks
		}
	}

	return builder.AddDocument(d.URL, tokens, fields.StoredBag())
}

// analyzeKeywordValues treats each newline-separated value as one
// keyword token with its own position, so multi-valued fields like tags
// match per value rather than as one joined string.
func analyzeKeywordValues(text string) []analysis.Token {
	var tokens []analysis.Token
	position := 0
	for _, value := range strings.Split(text, "\n") {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		tokens = append(tokens, analysis.Token{
			Text:     value,
			Position: position,
			EndChar:  len(value),
		})
		position++
	}
	return tokens
}
