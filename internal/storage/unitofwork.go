package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docsearch/internal/docmodel"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// UnitOfWork stages document writes in a uuid-named directory under
// docs_root and promotes them atomically on Commit. Concurrent units
// never collide; each gets its own staging directory.
type UnitOfWork struct {
	docsRoot   string
	stagingDir string

	mu        sync.Mutex
	staged    []string // markdown+meta paths relative to staging root
	committed bool
	closed    bool
}

// Begin creates a fresh staging directory for a new unit of work.
func Begin(docsRoot string) (*UnitOfWork, error) {
	stagingDir := filepath.Join(docsRoot, urlpath.StagingPrefix+uuid.NewString())
	dirs := []string{
		stagingDir,
		filepath.Join(stagingDir, urlpath.MetadataDirName),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create staging directory %s: %w", dir, err)
		}
	}
	return &UnitOfWork{docsRoot: docsRoot, stagingDir: stagingDir}, nil
}

// StagingDir returns the unit's private staging directory.
func (u *UnitOfWork) StagingDir() string { return u.stagingDir }

// Add stages a document's markdown and metadata side-car and returns
// the markdown path relative to docs_root.
func (u *UnitOfWork) Add(doc docmodel.Document) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", fmt.Errorf("stage document: %w", err)
	}

	rel, err := urlpath.Translate(doc.URL)
	if err != nil {
		return "", err
	}
	metaRel := urlpath.MetaRelPath(rel)

	meta := MetaFile{URL: doc.URL, Meta: doc.Meta}
	if meta.Title == "" {
		meta.Title = doc.Title
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return "", fmt.Errorf("unit of work already closed")
	}

	if err := os.WriteFile(filepath.Join(u.stagingDir, rel), []byte(doc.Content.Markdown), 0o640); err != nil {
		return "", fmt.Errorf("write staged markdown: %w", err)
	}
	if err := os.WriteFile(filepath.Join(u.stagingDir, metaRel), metaJSON, 0o640); err != nil {
		return "", fmt.Errorf("write staged metadata: %w", err)
	}
	u.staged = append(u.staged, rel, metaRel)
	return rel, nil
}

// Commit moves every staged file into docs_root, overwriting previous
// versions in place, then removes the staging directory. Unrelated
// documents are never touched.
func (u *UnitOfWork) Commit() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return fmt.Errorf("unit of work already closed")
	}

	for _, rel := range u.staged {
		src := filepath.Join(u.stagingDir, rel)
		dst := filepath.Join(u.docsRoot, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return fmt.Errorf("create target directory: %w", err)
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("promote %s: %w", rel, err)
		}
	}

	if err := os.RemoveAll(u.stagingDir); err != nil {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	u.committed = true
	u.closed = true
	return nil
}

// Rollback discards all staged writes. Calling it after Commit (or
// twice) is a no-op, so it is safe to defer.
func (u *UnitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	if err := os.RemoveAll(u.stagingDir); err != nil {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	return nil
}

// Committed reports whether Commit completed.
func (u *UnitOfWork) Committed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.committed
}
