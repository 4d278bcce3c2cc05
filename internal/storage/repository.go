// Package storage owns the on-disk document tree for a tenant: the
// hashed markdown files under docs_root and their metadata side-cars.
// All writes go through a UnitOfWork so partially written documents are
// never visible to readers.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docsearch/internal/docmodel"
	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// MetaFile is the JSON side-car persisted next to each markdown file,
// mirrored under the metadata subtree. It carries the original URL so
// the hashed filename stays reversible.
type MetaFile struct {
	URL string `json:"url"`
	docmodel.Meta
}

// Repository reads documents from a tenant docs_root.
type Repository struct {
	docsRoot string
}

// NewRepository opens (creating if needed) the document tree at docsRoot.
func NewRepository(docsRoot string) (*Repository, error) {
	if docsRoot == "" {
		return nil, fmt.Errorf("empty docs root")
	}
	dirs := []string{
		docsRoot,
		filepath.Join(docsRoot, urlpath.MetadataDirName),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &Repository{docsRoot: docsRoot}, nil
}

// Root returns the docs_root path.
func (r *Repository) Root() string { return r.docsRoot }

// RelPath maps a URL to its deterministic markdown path relative to
// docs_root.
func (r *Repository) RelPath(rawURL string) (string, error) {
	return urlpath.Translate(rawURL)
}

// Exists reports whether the markdown file for a URL is present.
func (r *Repository) Exists(rawURL string) (bool, error) {
	rel, err := urlpath.Translate(rawURL)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(r.docsRoot, rel))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat document: %w", err)
	}
	return true, nil
}

// Load reads the document for a URL, combining the markdown body with
// its metadata side-car. A missing side-car degrades to empty metadata.
func (r *Repository) Load(rawURL string) (*docmodel.Document, error) {
	rel, err := urlpath.Translate(rawURL)
	if err != nil {
		return nil, err
	}
	return r.LoadByRelPath(rel)
}

// LoadByRelPath reads a document by its markdown path relative to
// docs_root.
func (r *Repository) LoadByRelPath(rel string) (*docmodel.Document, error) {
	markdown, err := os.ReadFile(filepath.Join(r.docsRoot, rel))
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.NotFound("document " + rel)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", rel, err)
	}

	doc := &docmodel.Document{
		Content: docmodel.Content{Markdown: string(markdown)},
	}

	meta, err := r.LoadMeta(rel)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		doc.URL = meta.URL
		doc.Title = meta.Title
		doc.Meta = meta.Meta
	}
	return doc, nil
}

// LoadMeta reads the metadata side-car for a markdown path. Returns
// (nil, nil) when the side-car is missing.
func (r *Repository) LoadMeta(mdRelPath string) (*MetaFile, error) {
	data, err := os.ReadFile(filepath.Join(r.docsRoot, urlpath.MetaRelPath(mdRelPath)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata for %s: %w", mdRelPath, err)
	}
	var meta MetaFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata for %s: %w", mdRelPath, err)
	}
	return &meta, nil
}

// Delete removes a document and its metadata side-car. Missing files
// are ignored.
func (r *Repository) Delete(rawURL string) error {
	rel, err := urlpath.Translate(rawURL)
	if err != nil {
		return err
	}
	return r.DeleteByRelPath(rel)
}

// DeleteByRelPath removes the markdown file and side-car for a relative
// markdown path.
func (r *Repository) DeleteByRelPath(rel string) error {
	for _, p := range []string{rel, urlpath.MetaRelPath(rel)} {
		if err := os.Remove(filepath.Join(r.docsRoot, p)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	return nil
}
