package config

import "time"

// Operation modes controlling whether tenants may reach the network.
const (
	ModeOnline  = "online"
	ModeOffline = "offline"
)

// Tenant source types.
const (
	SourceOnline     = "online"
	SourceGit        = "git"
	SourceFilesystem = "filesystem"
)

// Snippet rendering styles.
const (
	SnippetStylePlain = "plain"
	SnippetStyleHTML  = "html"
)

// Config represents the full deployment configuration.
type Config struct {
	Infrastructure Infrastructure `json:"infrastructure" yaml:"infrastructure"`
	Tenants        []Tenant       `json:"tenants" yaml:"tenants"`
}

// Infrastructure represents service-wide settings shared by all tenants.
type Infrastructure struct {
	HTTPTimeoutSeconds       int             `json:"http_timeout" yaml:"http_timeout"`
	MaxConcurrentRequests    int             `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	OperationMode            string          `json:"operation_mode" yaml:"operation_mode"`
	LogLevel                 string          `json:"log_level" yaml:"log_level"`
	MCPPort                  int             `json:"mcp_port" yaml:"mcp_port"`
	DataDir                  string          `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	ArticleExtractorFallback FallbackService `json:"article_extractor_fallback" yaml:"article_extractor_fallback"`
}

// FallbackService represents the optional external article extraction service.
type FallbackService struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// HTTPTimeout returns the infrastructure HTTP timeout as a duration.
func (i Infrastructure) HTTPTimeout() time.Duration {
	return time.Duration(i.HTTPTimeoutSeconds) * time.Second
}

// Tenant represents one configured documentation corpus.
type Tenant struct {
	Codename string `json:"codename" yaml:"codename"`
	DocsName string `json:"docs_name" yaml:"docs_name"`

	SourceType  string `json:"source_type" yaml:"source_type"`
	DocsRootDir string `json:"docs_root_dir,omitempty" yaml:"docs_root_dir,omitempty"`

	// Online source settings.
	DocsSitemapURL       string   `json:"docs_sitemap_url,omitempty" yaml:"docs_sitemap_url,omitempty"`
	DocsEntryURL         string   `json:"docs_entry_url,omitempty" yaml:"docs_entry_url,omitempty"`
	URLWhitelistPrefixes []string `json:"url_whitelist_prefixes,omitempty" yaml:"url_whitelist_prefixes,omitempty"`
	URLBlacklistPrefixes []string `json:"url_blacklist_prefixes,omitempty" yaml:"url_blacklist_prefixes,omitempty"`

	// Git source settings.
	GitRepoURL   string   `json:"git_repo_url,omitempty" yaml:"git_repo_url,omitempty"`
	GitBranch    string   `json:"git_branch,omitempty" yaml:"git_branch,omitempty"`
	GitSubpaths  []string `json:"git_subpaths,omitempty" yaml:"git_subpaths,omitempty"`
	StripPrefix  string   `json:"strip_prefix,omitempty" yaml:"strip_prefix,omitempty"`
	AuthTokenEnv string   `json:"auth_token_env,omitempty" yaml:"auth_token_env,omitempty"`

	RefreshSchedule string `json:"refresh_schedule,omitempty" yaml:"refresh_schedule,omitempty"`

	Search Search `json:"search" yaml:"search"`
}

// Search represents the per-tenant search engine configuration.
type Search struct {
	Enabled         bool               `json:"enabled" yaml:"enabled"`
	Engine          string             `json:"engine,omitempty" yaml:"engine,omitempty"`
	AnalyzerProfile string             `json:"analyzer_profile,omitempty" yaml:"analyzer_profile,omitempty"`
	Boosts          map[string]float64 `json:"boosts,omitempty" yaml:"boosts,omitempty"`
	Ranking         Ranking            `json:"ranking" yaml:"ranking"`
	Snippet         Snippet            `json:"snippet" yaml:"snippet"`
}

// Ranking represents BM25 tuning knobs.
type Ranking struct {
	BM25K1               float64 `json:"bm25_k1,omitempty" yaml:"bm25_k1,omitempty"`
	BM25B                float64 `json:"bm25_b,omitempty" yaml:"bm25_b,omitempty"`
	EnableProximityBonus bool    `json:"enable_proximity_bonus" yaml:"enable_proximity_bonus"`
}

// Snippet represents result snippet generation settings.
type Snippet struct {
	FragmentCharLimit int    `json:"fragment_char_limit,omitempty" yaml:"fragment_char_limit,omitempty"`
	Style             string `json:"style,omitempty" yaml:"style,omitempty"`
	MaxFragments      int    `json:"max_fragments,omitempty" yaml:"max_fragments,omitempty"`
}

// TenantByCodename returns the tenant with the given codename, or nil.
func (c *Config) TenantByCodename(codename string) *Tenant {
	for i := range c.Tenants {
		if c.Tenants[i].Codename == codename {
			return &c.Tenants[i]
		}
	}
	return nil
}

// SeedURLs returns the configured crawl seeds for an online tenant.
func (t Tenant) SeedURLs() (sitemaps, entries []string) {
	if t.DocsSitemapURL != "" {
		sitemaps = append(sitemaps, t.DocsSitemapURL)
	}
	if t.DocsEntryURL != "" {
		entries = append(entries, t.DocsEntryURL)
	}
	return sitemaps, entries
}
