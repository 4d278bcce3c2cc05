package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/docsearch/internal/docmodel"
	"git.home.luguber.info/inful/docsearch/internal/index"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// docEntry is one discovered markdown file paired with its metadata.
type docEntry struct {
	RelPath  string
	URL      string
	Markdown string
	Meta     docmodel.Meta
}

func (d docEntry) summary() index.DocSummary {
	return index.DocSummary{
		URL:           d.URL,
		LastFetchedAt: d.Meta.LastFetchedAt.Unix(),
		ContentHash:   index.ContentHash([]byte(d.Markdown)),
	}
}

// discover walks docs_root for markdown files, skipping the metadata
// and segment subtrees plus staging directories, and pairs each file
// with its side-car. The result is sorted by URL for determinism.
func (ix *Indexer) discover() ([]docEntry, error) {
	var docs []docEntry

	err := filepath.WalkDir(ix.tenant.DocsRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(ix.tenant.DocsRoot, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel != "." && urlpath.IsReservedRelPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(entry.Name(), urlpath.MarkdownExt) || urlpath.IsReservedRelPath(rel) {
			return nil
		}

		doc, ok, loadErr := ix.loadEntry(rel, path)
		if loadErr != nil {
			return loadErr
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk docs root: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })
	return docs, nil
}

// loadEntry reads one markdown file and its metadata side-car. Files
// without metadata still index under a path-derived URL. Returns
// ok=false when the tenant's URL filter drops the document.
func (ix *Indexer) loadEntry(rel, absPath string) (docEntry, bool, error) {
	markdown, err := os.ReadFile(absPath)
	if err != nil {
		return docEntry{}, false, fmt.Errorf("read %s: %w", rel, err)
	}

	doc := docEntry{
		RelPath:  rel,
		URL:      "file:///" + rel,
		Markdown: string(markdown),
	}

	meta, err := ix.repo.LoadMeta(rel)
	if err != nil {
		return docEntry{}, false, err
	}
	if meta != nil {
		doc.Meta = meta.Meta
		if meta.URL != "" {
			doc.URL = meta.URL
		}
	}

	if ix.tenant.SourceType == SourceOnline && !ix.filter.ShouldProcess(doc.URL) {
		return docEntry{}, false, nil
	}
	return doc, true, nil
}
