package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalJSON = `{
  "infrastructure": {
    "operation_mode": "online",
    "mcp_port": 9100
  },
  "tenants": [
    {
      "codename": "golang",
      "docs_name": "Go Documentation",
      "source_type": "online",
      "docs_sitemap_url": "https://go.dev/sitemap.xml",
      "search": {"enabled": true}
    }
  ]
}`

func TestLoadJSONAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "deployment.json", minimalJSON))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Infrastructure.MCPPort)
	assert.Equal(t, DefaultHTTPTimeoutSeconds, cfg.Infrastructure.HTTPTimeoutSeconds)
	assert.Equal(t, DefaultMaxConcurrentRequests, cfg.Infrastructure.MaxConcurrentRequests)
	assert.Equal(t, DefaultLogLevel, cfg.Infrastructure.LogLevel)

	require.Len(t, cfg.Tenants, 1)
	tn := cfg.Tenants[0]
	assert.Equal(t, filepath.Join(DefaultDataDir, "golang"), tn.DocsRootDir)
	assert.Equal(t, DefaultSearchEngine, tn.Search.Engine)
	assert.Equal(t, DefaultAnalyzerProfile, tn.Search.AnalyzerProfile)
	assert.InDelta(t, DefaultBM25K1, tn.Search.Ranking.BM25K1, 1e-9)
	assert.InDelta(t, DefaultBM25B, tn.Search.Ranking.BM25B, 1e-9)
	assert.Equal(t, SnippetStylePlain, tn.Search.Snippet.Style)
	assert.Equal(t, DefaultMaxFragments, tn.Search.Snippet.MaxFragments)
}

func TestLoadYAML(t *testing.T) {
	body := `
infrastructure:
  operation_mode: offline
tenants:
  - codename: runbooks
    source_type: filesystem
    docs_root_dir: /srv/runbooks
    search:
      enabled: true
      analyzer_profile: code-friendly
`
	cfg, err := Load(writeConfig(t, "deployment.yaml", body))
	require.NoError(t, err)
	assert.Equal(t, ModeOffline, cfg.Infrastructure.OperationMode)
	require.Len(t, cfg.Tenants, 1)
	assert.Equal(t, "/srv/runbooks", cfg.Tenants[0].DocsRootDir)
	assert.Equal(t, "code-friendly", cfg.Tenants[0].Search.AnalyzerProfile)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("DOCS_SITEMAP", "https://docs.example.com/sitemap.xml")
	body := `{
  "infrastructure": {"operation_mode": "online"},
  "tenants": [
    {"codename": "example", "source_type": "online", "docs_sitemap_url": "${DOCS_SITEMAP}", "search": {"enabled": true}}
  ]
}`
	cfg, err := Load(writeConfig(t, "deployment.json", body))
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com/sitemap.xml", cfg.Tenants[0].DocsSitemapURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfig))
}

func TestValidateDuplicateCodename(t *testing.T) {
	cfg := &Config{
		Infrastructure: Infrastructure{OperationMode: ModeOnline},
		Tenants: []Tenant{
			{Codename: "dup", SourceType: SourceFilesystem, DocsRootDir: "/a"},
			{Codename: "dup", SourceType: SourceFilesystem, DocsRootDir: "/b"},
		},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tenant codename")
}

func TestValidateTenantRules(t *testing.T) {
	cases := []struct {
		name    string
		tenant  Tenant
		wantErr string
	}{
		{
			name:    "online without seeds",
			tenant:  Tenant{Codename: "t1", SourceType: SourceOnline},
			wantErr: "docs_sitemap_url or docs_entry_url",
		},
		{
			name:    "git without repo url",
			tenant:  Tenant{Codename: "t2", SourceType: SourceGit, GitSubpaths: []string{"docs"}},
			wantErr: "git_repo_url",
		},
		{
			name:    "git without subpaths",
			tenant:  Tenant{Codename: "t3", SourceType: SourceGit, GitRepoURL: "https://example.com/r.git"},
			wantErr: "git_subpaths",
		},
		{
			name:    "unknown source type",
			tenant:  Tenant{Codename: "t4", SourceType: "ftp"},
			wantErr: "invalid source_type",
		},
		{
			name:    "uppercase codename",
			tenant:  Tenant{Codename: "Bad", SourceType: SourceFilesystem, DocsRootDir: "/x"},
			wantErr: "lowercase",
		},
		{
			name: "bad snippet style",
			tenant: Tenant{
				Codename: "t5", SourceType: SourceFilesystem, DocsRootDir: "/x",
				Search: Search{Snippet: Snippet{Style: "markdown"}},
			},
			wantErr: "snippet style",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Infrastructure: Infrastructure{OperationMode: ModeOnline},
				Tenants:        []Tenant{tc.tenant},
			}
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateInfrastructure(t *testing.T) {
	err := Validate(&Config{Infrastructure: Infrastructure{OperationMode: "hybrid"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation_mode")

	err = Validate(&Config{Infrastructure: Infrastructure{
		OperationMode:            ModeOnline,
		ArticleExtractorFallback: FallbackService{Enabled: true},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestTenantByCodename(t *testing.T) {
	cfg := &Config{Tenants: []Tenant{{Codename: "a"}, {Codename: "b"}}}
	require.NotNil(t, cfg.TenantByCodename("b"))
	assert.Nil(t, cfg.TenantByCodename("c"))
}
