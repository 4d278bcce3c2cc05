package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsearch/internal/docmodel"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

func testDocument(url string) docmodel.Document {
	return docmodel.Document{
		URL:     url,
		Title:   "Test Page",
		Content: docmodel.Content{Markdown: "# Test Page\n\nSome body text.\n"},
		Meta: docmodel.Meta{
			Status:        docmodel.StatusSuccess,
			LastFetchedAt: time.Now(),
			Language:      "en",
		},
	}
}

func TestUnitOfWorkCommitPromotesFiles(t *testing.T) {
	root := t.TempDir()
	repo, err := NewRepository(root)
	require.NoError(t, err)

	uow, err := Begin(root)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback() }()

	rel, err := uow.Add(testDocument("https://docs.example.com/guide"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(rel, ".md"))

	// Not visible before commit.
	exists, err := repo.Exists("https://docs.example.com/guide")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, uow.Commit())
	assert.True(t, uow.Committed())

	exists, err = repo.Exists("https://docs.example.com/guide")
	require.NoError(t, err)
	assert.True(t, exists)

	// Staging directory is gone.
	_, err = os.Stat(uow.StagingDir())
	assert.True(t, os.IsNotExist(err))

	doc, err := repo.Load("https://docs.example.com/guide")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com/guide", doc.URL)
	assert.Contains(t, doc.Content.Markdown, "Some body text")
	assert.Equal(t, docmodel.StatusSuccess, doc.Meta.Status)
}

func TestUnitOfWorkRollbackDiscardsEverything(t *testing.T) {
	root := t.TempDir()
	repo, err := NewRepository(root)
	require.NoError(t, err)

	uow, err := Begin(root)
	require.NoError(t, err)
	_, err = uow.Add(testDocument("https://docs.example.com/guide"))
	require.NoError(t, err)

	require.NoError(t, uow.Rollback())

	_, err = os.Stat(uow.StagingDir())
	assert.True(t, os.IsNotExist(err))
	exists, err := repo.Exists("https://docs.example.com/guide")
	require.NoError(t, err)
	assert.False(t, exists)

	// Rollback after rollback is a no-op.
	require.NoError(t, uow.Rollback())
}

func TestRollbackAfterCommitIsNoOp(t *testing.T) {
	root := t.TempDir()
	repo, err := NewRepository(root)
	require.NoError(t, err)

	uow, err := Begin(root)
	require.NoError(t, err)
	_, err = uow.Add(testDocument("https://docs.example.com/guide"))
	require.NoError(t, err)
	require.NoError(t, uow.Commit())
	require.NoError(t, uow.Rollback())

	exists, err := repo.Exists("https://docs.example.com/guide")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestConcurrentUnitsGetDistinctStagingDirs(t *testing.T) {
	root := t.TempDir()
	_, err := NewRepository(root)
	require.NoError(t, err)

	a, err := Begin(root)
	require.NoError(t, err)
	b, err := Begin(root)
	require.NoError(t, err)
	defer func() { _ = a.Rollback(); _ = b.Rollback() }()

	assert.NotEqual(t, a.StagingDir(), b.StagingDir())
}

func TestCommitDoesNotTouchUnrelatedDocuments(t *testing.T) {
	root := t.TempDir()
	repo, err := NewRepository(root)
	require.NoError(t, err)

	first, err := Begin(root)
	require.NoError(t, err)
	_, err = first.Add(testDocument("https://docs.example.com/a"))
	require.NoError(t, err)
	require.NoError(t, first.Commit())

	second, err := Begin(root)
	require.NoError(t, err)
	_, err = second.Add(testDocument("https://docs.example.com/b"))
	require.NoError(t, err)
	require.NoError(t, second.Commit())

	for _, url := range []string{"https://docs.example.com/a", "https://docs.example.com/b"} {
		exists, err := repo.Exists(url)
		require.NoError(t, err)
		assert.True(t, exists, url)
	}
}

func TestAddRejectsInvalidDocument(t *testing.T) {
	root := t.TempDir()
	uow, err := Begin(root)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback() }()

	_, err = uow.Add(docmodel.Document{URL: "https://docs.example.com/x"})
	assert.Error(t, err)
}

func TestRepositoryDelete(t *testing.T) {
	root := t.TempDir()
	repo, err := NewRepository(root)
	require.NoError(t, err)

	uow, err := Begin(root)
	require.NoError(t, err)
	_, err = uow.Add(testDocument("https://docs.example.com/a"))
	require.NoError(t, err)
	require.NoError(t, uow.Commit())

	require.NoError(t, repo.Delete("https://docs.example.com/a"))
	exists, err := repo.Exists("https://docs.example.com/a")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting again is fine.
	require.NoError(t, repo.Delete("https://docs.example.com/a"))
}

func TestSweepOrphanStaging(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	stale := filepath.Join(root, urlpath.StagingPrefix+"stale")
	require.NoError(t, os.MkdirAll(stale, 0o750))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh, err := Begin(root)
	require.NoError(t, err)
	defer func() { _ = fresh.Rollback() }()

	removed, err := SweepOrphanStaging(root, time.Hour, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh.StagingDir())
	assert.NoError(t, err)
}
