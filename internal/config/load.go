package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
)

// Defaults applied after unmarshalling.
const (
	DefaultHTTPTimeoutSeconds    = 30
	DefaultMaxConcurrentRequests = 4
	DefaultMCPPort               = 8700
	DefaultDataDir               = "./data"
	DefaultLogLevel              = "info"

	DefaultSearchEngine      = "bm25"
	DefaultAnalyzerProfile   = "default"
	DefaultBM25K1            = 1.2
	DefaultBM25B             = 0.75
	DefaultFragmentCharLimit = 300
	DefaultMaxFragments      = 3
	DefaultSnippetStyle      = SnippetStylePlain
)

// Load reads and validates a deployment configuration file. Both JSON and
// YAML files are accepted; environment variable references in the file body
// are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ConfigErrorWrap(fmt.Sprintf("read config file %s", path), err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, apperrors.ConfigErrorWrap(fmt.Sprintf("parse config file %s", path), err)
		}
	default:
		if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, apperrors.ConfigErrorWrap(fmt.Sprintf("parse config file %s", path), err)
		}
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	infra := &cfg.Infrastructure
	if infra.HTTPTimeoutSeconds <= 0 {
		infra.HTTPTimeoutSeconds = DefaultHTTPTimeoutSeconds
	}
	if infra.MaxConcurrentRequests <= 0 {
		infra.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if infra.OperationMode == "" {
		infra.OperationMode = ModeOnline
	}
	if infra.LogLevel == "" {
		infra.LogLevel = DefaultLogLevel
	}
	if infra.MCPPort == 0 {
		infra.MCPPort = DefaultMCPPort
	}
	if infra.DataDir == "" {
		infra.DataDir = DefaultDataDir
	}

	for i := range cfg.Tenants {
		applyTenantDefaults(&cfg.Tenants[i], infra.DataDir)
	}
}

func applyTenantDefaults(t *Tenant, dataDir string) {
	if t.DocsName == "" {
		t.DocsName = t.Codename
	}
	if t.DocsRootDir == "" && t.Codename != "" {
		t.DocsRootDir = filepath.Join(dataDir, t.Codename)
	}
	if t.SourceType == SourceGit && t.GitBranch == "" {
		t.GitBranch = "main"
	}

	s := &t.Search
	if s.Engine == "" {
		s.Engine = DefaultSearchEngine
	}
	if s.AnalyzerProfile == "" {
		s.AnalyzerProfile = DefaultAnalyzerProfile
	}
	if s.Ranking.BM25K1 <= 0 {
		s.Ranking.BM25K1 = DefaultBM25K1
	}
	if s.Ranking.BM25B < 0 || s.Ranking.BM25B > 1 || s.Ranking.BM25B == 0 {
		s.Ranking.BM25B = DefaultBM25B
	}
	if s.Snippet.FragmentCharLimit <= 0 {
		s.Snippet.FragmentCharLimit = DefaultFragmentCharLimit
	}
	if s.Snippet.MaxFragments <= 0 {
		s.Snippet.MaxFragments = DefaultMaxFragments
	}
	if s.Snippet.Style == "" {
		s.Snippet.Style = DefaultSnippetStyle
	}
}
