package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docsearch/internal/config"
	"git.home.luguber.info/inful/docsearch/internal/indexer"
	"git.home.luguber.info/inful/docsearch/internal/segment"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// Audit exit codes.
const (
	auditOK         = 0
	auditUsageError = 1
	auditMismatch   = 2
	auditFailed     = 3
)

// runAudit compares each tenant's corpus fingerprint against its latest
// persisted segment. With rebuild, mismatched tenants get a fresh
// segment and are audited again.
func runAudit(cfg *config.Config, only string, rebuild bool) int {
	tenants := cfg.Tenants
	if only != "" {
		tc := cfg.TenantByCodename(only)
		if tc == nil {
			fmt.Fprintf(os.Stderr, "unknown tenant %q\n", only)
			return auditUsageError
		}
		tenants = []config.Tenant{*tc}
	}

	var mismatches, failures int
	for _, tc := range tenants {
		if !tc.Search.Enabled {
			continue
		}
		logger := slog.Default().With("tenant", tc.Codename)

		ix, err := newAuditIndexer(tc)
		if err != nil {
			logger.Error("audit setup failed", "error", err)
			failures++
			continue
		}

		result, err := ix.FingerprintAudit()
		if err != nil {
			logger.Error("audit failed", "error", err)
			failures++
			continue
		}
		if !result.NeedsRebuild {
			logger.Info("segment up to date", "segment", result.CurrentSegmentID)
			continue
		}

		logger.Warn("segment fingerprint mismatch",
			"expected", result.Fingerprint,
			"current", result.CurrentSegmentID)
		if !rebuild {
			mismatches++
			continue
		}

		if _, err := ix.BuildSegment(indexer.BuildOptions{Persist: true}); err != nil {
			logger.Error("rebuild failed", "error", err)
			failures++
			continue
		}
		result, err = ix.FingerprintAudit()
		if err != nil || result.NeedsRebuild {
			logger.Error("segment still mismatched after rebuild", "error", err)
			failures++
			continue
		}
		logger.Info("segment rebuilt", "segment", result.CurrentSegmentID)
	}

	switch {
	case failures > 0:
		return auditFailed
	case mismatches > 0:
		return auditMismatch
	default:
		return auditOK
	}
}

func newAuditIndexer(tc config.Tenant) (*indexer.Indexer, error) {
	segDir := filepath.Join(tc.DocsRootDir, urlpath.SegmentsDirName)
	store, err := segment.NewStore(segDir, 0)
	if err != nil {
		return nil, err
	}
	return indexer.New(indexer.TenantContext{
		Codename:             tc.Codename,
		DocsRoot:             tc.DocsRootDir,
		SegmentsDir:          segDir,
		SourceType:           tc.SourceType,
		URLWhitelistPrefixes: tc.URLWhitelistPrefixes,
		URLBlacklistPrefixes: tc.URLBlacklistPrefixes,
		AnalyzerProfile:      tc.Search.AnalyzerProfile,
	}, store, slog.Default())
}
