package config

import (
	"fmt"
	"regexp"

	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
)

var codenamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the configuration for structural problems. It is called by
// Load but exported for callers that build configurations in memory.
func Validate(cfg *Config) error {
	if err := validateInfrastructure(cfg.Infrastructure); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(cfg.Tenants))
	for i := range cfg.Tenants {
		t := &cfg.Tenants[i]
		if err := validateTenant(t); err != nil {
			return err
		}
		if _, dup := seen[t.Codename]; dup {
			return apperrors.ConfigError(fmt.Sprintf("duplicate tenant codename %q", t.Codename))
		}
		seen[t.Codename] = struct{}{}
	}
	return nil
}

func validateInfrastructure(infra Infrastructure) error {
	switch infra.OperationMode {
	case ModeOnline, ModeOffline:
	default:
		return apperrors.ConfigError(fmt.Sprintf("invalid operation_mode %q", infra.OperationMode))
	}
	if infra.MCPPort < 0 || infra.MCPPort > 65535 {
		return apperrors.ConfigError(fmt.Sprintf("invalid mcp_port %d", infra.MCPPort))
	}
	if infra.ArticleExtractorFallback.Enabled && infra.ArticleExtractorFallback.Endpoint == "" {
		return apperrors.ConfigError("article_extractor_fallback enabled without endpoint")
	}
	return nil
}

func validateTenant(t *Tenant) error {
	if t.Codename == "" {
		return apperrors.ConfigError("tenant codename is required")
	}
	if !codenamePattern.MatchString(t.Codename) {
		return apperrors.ConfigError(fmt.Sprintf("tenant codename %q must be lowercase alphanumeric with - or _", t.Codename))
	}

	switch t.SourceType {
	case SourceOnline:
		if t.DocsSitemapURL == "" && t.DocsEntryURL == "" {
			return tenantErr(t, "online tenant requires docs_sitemap_url or docs_entry_url")
		}
	case SourceGit:
		if t.GitRepoURL == "" {
			return tenantErr(t, "git tenant requires git_repo_url")
		}
		if len(t.GitSubpaths) == 0 {
			return tenantErr(t, "git tenant requires at least one entry in git_subpaths")
		}
	case SourceFilesystem:
		if t.DocsRootDir == "" {
			return tenantErr(t, "filesystem tenant requires docs_root_dir")
		}
	default:
		return tenantErr(t, fmt.Sprintf("invalid source_type %q", t.SourceType))
	}

	switch t.Search.Snippet.Style {
	case "", SnippetStylePlain, SnippetStyleHTML:
	default:
		return tenantErr(t, fmt.Sprintf("invalid snippet style %q", t.Search.Snippet.Style))
	}
	if r := t.Search.Ranking; r.BM25B < 0 || r.BM25B > 1 {
		return tenantErr(t, fmt.Sprintf("bm25_b %v out of range [0,1]", r.BM25B))
	}
	return nil
}

func tenantErr(t *Tenant, msg string) error {
	return apperrors.ConfigError(fmt.Sprintf("tenant %s: %s", t.Codename, msg))
}
