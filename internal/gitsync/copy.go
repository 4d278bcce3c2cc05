package gitsync

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// copyDocs copies documentation files from the clone into docs_root via
// a staging directory, so readers never see a half-copied tree. Files
// that fail to copy are reported as warnings, not errors.
func (s *Syncer) copyDocs(repoPath string) ([]string, []string, error) {
	roots := s.cfg.Subpaths
	if len(roots) == 0 {
		roots = []string{"."}
	}

	stagingDir := filepath.Join(s.cfg.DocsRoot, urlpath.StagingPrefix+uuid.NewString())
	if err := os.MkdirAll(stagingDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	var staged []string
	var warnings []string
	for _, root := range roots {
		sub := filepath.Join(repoPath, filepath.FromSlash(root))
		if _, err := os.Stat(sub); os.IsNotExist(err) {
			warnings = append(warnings, fmt.Sprintf("subpath %s not in repository", root))
			continue
		}

		err := filepath.WalkDir(sub, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				if entry.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if !s.isDocFile(entry.Name()) {
				return nil
			}

			repoRel, relErr := filepath.Rel(repoPath, path)
			if relErr != nil {
				return relErr
			}
			target := s.targetRelPath(filepath.ToSlash(repoRel))
			if target == "" {
				return nil
			}

			if copyErr := copyFile(path, filepath.Join(stagingDir, filepath.FromSlash(target))); copyErr != nil {
				warnings = append(warnings, fmt.Sprintf("copy %s: %v", repoRel, copyErr))
				return nil
			}
			staged = append(staged, target)
			return nil
		})
		if err != nil {
			return nil, warnings, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	// Promote staged files into docs_root.
	for _, rel := range staged {
		dst := filepath.Join(s.cfg.DocsRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return nil, warnings, fmt.Errorf("create target directory: %w", err)
		}
		if err := os.Rename(filepath.Join(stagingDir, filepath.FromSlash(rel)), dst); err != nil {
			return nil, warnings, fmt.Errorf("promote %s: %w", rel, err)
		}
	}
	return staged, warnings, nil
}

// pruneStale removes doc files under docs_root that the current sync did
// not stage, so deletions in the repository propagate. Service
// directories and dot-prefixed state files are never touched.
func (s *Syncer) pruneStale(staged []string) (int, []string) {
	keep := make(map[string]struct{}, len(staged))
	for _, rel := range staged {
		keep[rel] = struct{}{}
	}

	var removed int
	var warnings []string
	root := s.cfg.DocsRoot
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relSlash := filepath.ToSlash(rel)
		if urlpath.IsReservedRelPath(relSlash) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !s.isDocFile(entry.Name()) {
			return nil
		}
		if _, ok := keep[relSlash]; ok {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			warnings = append(warnings, fmt.Sprintf("prune %s: %v", relSlash, rmErr))
			return nil
		}
		removed++
		return nil
	})
	return removed, warnings
}

// targetRelPath maps a repo-relative path to its docs_root location,
// applying the configured strip prefix.
func (s *Syncer) targetRelPath(repoRel string) string {
	target := repoRel
	if s.cfg.StripPrefix != "" {
		prefix := strings.TrimSuffix(s.cfg.StripPrefix, "/") + "/"
		if strings.HasPrefix(target, prefix) {
			target = strings.TrimPrefix(target, prefix)
		}
	}
	if target == "" || urlpath.IsReservedRelPath(target) {
		return ""
	}
	return target
}

func (s *Syncer) isDocFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range s.cfg.DocExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o640)
}
