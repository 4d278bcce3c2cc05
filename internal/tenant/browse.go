package tenant

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// Browse depth bounds.
const (
	DefaultBrowseDepth = 5
	MaxBrowseDepth     = 5
)

// hashedFilePattern matches content-addressed markdown names, which
// carry no browsable structure.
var hashedFilePattern = regexp.MustCompile(`^[0-9a-f]{64}\.md$`)

// TreeNode is one entry of the browse tree.
type TreeNode struct {
	Name        string     `json:"name"`
	Title       string     `json:"title,omitempty"`
	URL         string     `json:"url,omitempty"`
	HasChildren bool       `json:"has_children"`
	Children    []TreeNode `json:"children,omitempty"`
}

// BrowseTreeResponse is the browse reply.
type BrowseTreeResponse struct {
	RootPath string     `json:"root_path"`
	Depth    int        `json:"depth"`
	Nodes    []TreeNode `json:"nodes"`
	Error    string     `json:"error,omitempty"`
}

// BrowseTree walks docs_root under relPath. Hashed files, metadata and
// segment subtrees, staging leftovers and childless directories are
// hidden. Files are enriched with metadata title and URL when a
// side-car exists.
func (rt *Runtime) BrowseTree(ctx context.Context, relPath string, depth int) BrowseTreeResponse {
	if depth <= 0 || depth > MaxBrowseDepth {
		depth = DefaultBrowseDepth
	}

	rel, ok := cleanBrowsePath(relPath)
	resp := BrowseTreeResponse{RootPath: rel, Depth: depth, Nodes: []TreeNode{}}
	if !ok {
		resp.Error = "Path not found"
		return resp
	}

	absRoot := filepath.Join(rt.cfg.DocsRootDir, filepath.FromSlash(rel))
	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		resp.Error = "Path not found"
		return resp
	}

	resp.Nodes = rt.walkTree(absRoot, rel, depth)
	if len(resp.Nodes) == 0 {
		resp.Error = "Path not found"
	}
	return resp
}

func (rt *Runtime) walkTree(dir, rel string, depth int) []TreeNode {
	entries, err := os.ReadDir(dir)
	if err != nil {
		rt.logger.Warn("browse read dir", logfields.Path(dir), logfields.Error(err))
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var nodes []TreeNode
	for _, entry := range entries {
		name := entry.Name()
		entryRel := path.Join(rel, name)
		if urlpath.IsReservedRelPath(entryRel) || urlpath.IsReservedRelPath(name) {
			continue
		}

		if entry.IsDir() {
			node := TreeNode{Name: name}
			if depth > 1 {
				node.Children = rt.walkTree(filepath.Join(dir, name), entryRel, depth-1)
				node.HasChildren = len(node.Children) > 0
			} else {
				node.HasChildren = rt.hasVisibleContent(filepath.Join(dir, name))
			}
			if !node.HasChildren {
				continue
			}
			nodes = append(nodes, node)
			continue
		}

		if !strings.HasSuffix(name, urlpath.MarkdownExt) || hashedFilePattern.MatchString(name) {
			continue
		}
		node := TreeNode{Name: name}
		if meta, err := rt.repo.LoadMeta(entryRel); err == nil && meta != nil {
			node.URL = meta.URL
			node.Title = meta.Title
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// hasVisibleContent peeks below a depth-limited directory so it still
// reports has_children without expanding.
func (rt *Runtime) hasVisibleContent(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if urlpath.IsReservedRelPath(name) {
			continue
		}
		if entry.IsDir() {
			if rt.hasVisibleContent(filepath.Join(dir, name)) {
				return true
			}
			continue
		}
		if strings.HasSuffix(name, urlpath.MarkdownExt) && !hashedFilePattern.MatchString(name) {
			return true
		}
	}
	return false
}

// cleanBrowsePath normalizes a user-supplied relative path and rejects
// escapes above docs_root.
func cleanBrowsePath(p string) (string, bool) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" || p == "." {
		return "", true
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
		return "", false
	}
	return cleaned, true
}
