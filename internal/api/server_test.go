package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsearch/internal/config"
	"git.home.luguber.info/inful/docsearch/internal/indexer"
	"git.home.luguber.info/inful/docsearch/internal/segment"
	"git.home.luguber.info/inful/docsearch/internal/tenant"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	docsRoot := filepath.Join(t.TempDir(), "docs")
	cfg := &config.Config{
		Infrastructure: config.Infrastructure{
			HTTPTimeoutSeconds:    5,
			MaxConcurrentRequests: 2,
			OperationMode:         config.ModeOnline,
		},
		Tenants: []config.Tenant{{
			Codename:    "runbooks",
			DocsName:    "Runbooks",
			SourceType:  config.SourceFilesystem,
			DocsRootDir: docsRoot,
			Search: config.Search{
				Enabled:         true,
				AnalyzerProfile: "default",
				Ranking:         config.Ranking{BM25K1: 1.2, BM25B: 0.75},
				Snippet:         config.Snippet{FragmentCharLimit: 300, Style: "plain", MaxFragments: 3},
			},
		}},
	}
	reg, err := tenant.NewRegistry(cfg, nil, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.ShutdownAll(context.Background()) })
	return NewServer("127.0.0.1:0", reg, nil, testLogger()), docsRoot
}

func indexDocs(t *testing.T, srv *Server, docsRoot string) {
	t.Helper()
	segDir := filepath.Join(docsRoot, urlpath.SegmentsDirName)
	store, err := segment.NewStore(segDir, 0)
	require.NoError(t, err)
	ix, err := indexer.New(indexer.TenantContext{
		Codename:        "runbooks",
		DocsRoot:        docsRoot,
		SegmentsDir:     segDir,
		SourceType:      indexer.SourceFilesystem,
		AnalyzerProfile: "default",
	}, store, testLogger())
	require.NoError(t, err)
	_, err = ix.BuildSegment(indexer.BuildOptions{Persist: true})
	require.NoError(t, err)

	rt, err := srv.registry.Get("runbooks")
	require.NoError(t, err)
	require.NoError(t, rt.ReloadSearchIndex())
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSearchUnknownTenant(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/tenants/ghost/search", SearchRequest{Query: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "not found")
}

func TestSearchEmptyCorpus(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/tenants/runbooks/search", SearchRequest{Query: "docker"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tenant.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Error)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.TotalResults)
}

func TestSearchReturnsRankedResults(t *testing.T) {
	srv, docsRoot := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(docsRoot, "deploy.md"),
		[]byte("# Deploying with Docker\n\nRun docker compose up to start.\n"), 0o600))
	indexDocs(t, srv, docsRoot)

	rec := doJSON(t, srv, http.MethodPost, "/api/tenants/runbooks/search", SearchRequest{Query: "docker", MaxResults: 5})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tenant.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "Deploying with Docker", resp.Results[0].Title)
	assert.Equal(t, "bm25_index", resp.Results[0].MatchTrace.StageName)
}

func TestFetchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/tenants/runbooks/fetch", FetchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/tenants/runbooks/fetch",
		FetchRequest{URI: "https://docs.example.com/missing", Context: "full"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp tenant.FetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Document not found", resp.Error)
}

func TestBrowseDepthValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/tenants/runbooks/browse?depth=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncTriggerBeforeInitialize(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/tenants/runbooks/sync/trigger", SyncTriggerRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp tenant.TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "sync already in progress", resp.Message)
}

func TestSyncStatusAndTenantsStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/tenants/runbooks/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status tenant.SyncStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.SchedulerInitialized)
	assert.Equal(t, config.ModeOnline, status.Stats.Mode)

	rec = doJSON(t, srv, http.MethodGet, "/api/tenants/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agg struct {
		Tenants []tenant.Health `json:"tenants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	require.Len(t, agg.Tenants, 1)
	assert.Equal(t, "runbooks", agg.Tenants[0].Codename)
}
