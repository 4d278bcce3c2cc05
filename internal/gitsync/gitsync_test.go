package gitsync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// initRepo creates a local repository with a docs/ tree.
func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeAndCommit(t, dir, repo, map[string]string{
		"docs/guide.md":        "# Guide\n\nGuide body.\n",
		"docs/nested/deep.md":  "# Deep\n\nNested body.\n",
		"docs/ignore.txt":      "not documentation",
		"src/main.go":          "package main",
		"README.markdown":      "# Readme\n",
	}, "initial docs")
	return dir, repo
}

func writeAndCommit(t *testing.T, dir string, repo *git.Repository, files map[string]string, msg string) string {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o640))
		_, err = wt.Add(rel)
		require.NoError(t, err)
	}

	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestSyncClonesAndCopiesDocs(t *testing.T) {
	repoDir, _ := initRepo(t)
	docsRoot := t.TempDir()

	s := New(Config{
		RepoURL:      repoDir,
		Subpaths:     []string{"docs"},
		StripPrefix:  "docs",
		WorkspaceDir: t.TempDir(),
		DocsRoot:     docsRoot,
	}, testLogger())

	result, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.True(t, result.RepoUpdated)
	assert.Equal(t, 2, result.FilesCopied)
	assert.NotEmpty(t, result.CommitID)

	assert.FileExists(t, filepath.Join(docsRoot, "guide.md"))
	assert.FileExists(t, filepath.Join(docsRoot, "nested", "deep.md"))
	assert.NoFileExists(t, filepath.Join(docsRoot, "ignore.txt"))

	// No staging leftovers.
	entries, err := os.ReadDir(docsRoot)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging-")
	}
}

func TestSecondSyncIsUpToDate(t *testing.T) {
	repoDir, repo := initRepo(t)
	docsRoot := t.TempDir()
	workspace := t.TempDir()

	s := New(Config{
		RepoURL:      repoDir,
		Subpaths:     []string{"docs"},
		StripPrefix:  "docs",
		WorkspaceDir: workspace,
		DocsRoot:     docsRoot,
	}, testLogger())

	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	second, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, second.RepoUpdated)

	// A new commit upstream flips repo_updated and lands the new file.
	writeAndCommit(t, repoDir, repo, map[string]string{
		"docs/new-page.md": "# New Page\n\nFresh content.\n",
	}, "add page")

	third, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, third.RepoUpdated)
	assert.FileExists(t, filepath.Join(docsRoot, "new-page.md"))
}

func TestRemovedSourceFilesArePruned(t *testing.T) {
	repoDir, repo := initRepo(t)
	docsRoot := t.TempDir()

	s := New(Config{
		RepoURL:      repoDir,
		Subpaths:     []string{"docs"},
		StripPrefix:  "docs",
		WorkspaceDir: t.TempDir(),
		DocsRoot:     docsRoot,
	}, testLogger())

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(docsRoot, "nested", "deep.md"))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Remove("docs/nested/deep.md")
	require.NoError(t, err)
	_, err = wt.Commit("drop deep page", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	second, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, second.FilesDeleted)
	assert.NoFileExists(t, filepath.Join(docsRoot, "nested", "deep.md"))
	assert.FileExists(t, filepath.Join(docsRoot, "guide.md"))
}

func TestMissingSubpathIsWarning(t *testing.T) {
	repoDir, _ := initRepo(t)

	s := New(Config{
		RepoURL:      repoDir,
		Subpaths:     []string{"docs", "missing-dir"},
		StripPrefix:  "docs",
		WorkspaceDir: t.TempDir(),
		DocsRoot:     t.TempDir(),
	}, testLogger())

	result, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesCopied)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "missing-dir")
}

func TestWholeTreeCopyWithoutSubpaths(t *testing.T) {
	repoDir, _ := initRepo(t)
	docsRoot := t.TempDir()

	s := New(Config{
		RepoURL:      repoDir,
		WorkspaceDir: t.TempDir(),
		DocsRoot:     docsRoot,
	}, testLogger())

	result, err := s.Sync(context.Background())
	require.NoError(t, err)
	// guide.md, deep.md and README.markdown; .txt and .go are skipped.
	assert.Equal(t, 3, result.FilesCopied)
	assert.FileExists(t, filepath.Join(docsRoot, "README.markdown"))
}

func TestTargetRelPathStripsPrefix(t *testing.T) {
	s := New(Config{StripPrefix: "docs"}, testLogger())
	assert.Equal(t, "guide.md", s.targetRelPath("docs/guide.md"))
	assert.Equal(t, "other/readme.md", s.targetRelPath("other/readme.md"))
	assert.Equal(t, "", s.targetRelPath("__docs_metadata/x.md"))
}
