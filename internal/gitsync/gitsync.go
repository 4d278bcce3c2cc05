// Package gitsync mirrors documentation files out of a git repository
// into a tenant's docs_root. The repo is kept as a persistent clone in
// the tenant workspace and pulled on every cycle.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/docsearch/internal/logfields"
)

// DefaultDocExtensions are the file types copied into docs_root.
var DefaultDocExtensions = []string{".md", ".markdown", ".mdx"}

// Config describes one tenant's git source.
type Config struct {
	RepoURL string
	Branch  string
	// Subpaths restricts the copy to these repo-relative directories.
	// Empty means the whole tree.
	Subpaths []string
	// StripPrefix removes a leading path component when mapping repo
	// paths into docs_root.
	StripPrefix   string
	DocExtensions []string
	// AuthToken authenticates https remotes when set.
	AuthToken string
	// WorkspaceDir holds the persistent clone.
	WorkspaceDir string
	DocsRoot     string
}

func (c Config) auth() transport.AuthMethod {
	if c.AuthToken == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "token", Password: c.AuthToken}
}

// Result summarizes one sync cycle.
type Result struct {
	CommitID     string        `json:"commit_id"`
	FilesCopied  int           `json:"files_copied"`
	FilesDeleted int           `json:"files_deleted"`
	Duration     time.Duration `json:"duration"`
	RepoUpdated  bool          `json:"repo_updated"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Syncer pulls the repo and copies documentation into docs_root.
type Syncer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Syncer.
func New(cfg Config, logger *slog.Logger) *Syncer {
	if len(cfg.DocExtensions) == 0 {
		cfg.DocExtensions = DefaultDocExtensions
	}
	return &Syncer{cfg: cfg, logger: logger}
}

// Sync runs one cycle: clone or pull the repo at the configured branch,
// then copy documentation files into docs_root through a staging
// directory.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	start := time.Now()

	repoPath, commitID, updated, err := s.ensureRepo(ctx)
	if err != nil {
		return nil, err
	}

	staged, warnings, err := s.copyDocs(repoPath)
	if err != nil {
		return nil, err
	}
	deleted, pruneWarnings := s.pruneStale(staged)
	warnings = append(warnings, pruneWarnings...)

	result := &Result{
		CommitID:     commitID,
		FilesCopied:  len(staged),
		FilesDeleted: deleted,
		Duration:     time.Since(start),
		RepoUpdated:  updated,
		Warnings:     warnings,
	}
	s.logger.Info("git sync complete",
		logfields.URL(s.cfg.RepoURL),
		logfields.Count(len(staged)),
		logfields.DurationMS(float64(result.Duration.Milliseconds())),
		slog.String("commit", shortHash(commitID)),
		slog.Int("files_deleted", deleted),
		slog.Bool("repo_updated", updated))
	return result, nil
}

// ensureRepo clones on first run and pulls afterwards. Returns the
// local path, head commit, and whether the head moved.
func (s *Syncer) ensureRepo(ctx context.Context) (string, string, bool, error) {
	repoPath := filepath.Join(s.cfg.WorkspaceDir, "repo")

	repo, err := git.PlainOpen(repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return s.clone(ctx, repoPath)
	}
	if err != nil {
		return "", "", false, fmt.Errorf("open repository: %w", err)
	}

	oldHead, err := repo.Head()
	if err != nil {
		return "", "", false, fmt.Errorf("read head: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", "", false, fmt.Errorf("open worktree: %w", err)
	}

	pullOpts := &git.PullOptions{Force: true, Auth: s.cfg.auth()}
	if s.cfg.Branch != "" {
		pullOpts.ReferenceName = plumbing.NewBranchReferenceName(s.cfg.Branch)
		pullOpts.SingleBranch = true
	}
	err = wt.PullContext(ctx, pullOpts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", "", false, fmt.Errorf("pull %s: %w", s.cfg.RepoURL, err)
	}

	newHead, err := repo.Head()
	if err != nil {
		return "", "", false, fmt.Errorf("read head after pull: %w", err)
	}
	return repoPath, newHead.Hash().String(), oldHead.Hash() != newHead.Hash(), nil
}

func (s *Syncer) clone(ctx context.Context, repoPath string) (string, string, bool, error) {
	s.logger.Info("cloning repository", logfields.URL(s.cfg.RepoURL), logfields.Path(repoPath))

	if err := os.MkdirAll(filepath.Dir(repoPath), 0o750); err != nil {
		return "", "", false, fmt.Errorf("create workspace: %w", err)
	}

	cloneOpts := &git.CloneOptions{URL: s.cfg.RepoURL, Auth: s.cfg.auth()}
	if s.cfg.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(s.cfg.Branch)
		cloneOpts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, repoPath, false, cloneOpts)
	if err != nil {
		return "", "", false, fmt.Errorf("clone %s: %w", s.cfg.RepoURL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", "", false, fmt.Errorf("read head: %w", err)
	}
	return repoPath, head.Hash().String(), true, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
