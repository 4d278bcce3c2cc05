package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// DefaultStagingMaxAge is how long an abandoned staging directory may
// linger before the sweeper removes it.
const DefaultStagingMaxAge = time.Hour

// SweepOrphanStaging removes staging directories under docsRoot whose
// mtime is older than maxAge. Live units of work are younger than any
// sane maxAge, so only crash leftovers are collected. Returns the
// number of directories removed.
func SweepOrphanStaging(docsRoot string, maxAge time.Duration, logger *slog.Logger) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultStagingMaxAge
	}
	entries, err := os.ReadDir(docsRoot)
	if err != nil {
		return 0, fmt.Errorf("read docs root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), urlpath.StagingPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(docsRoot, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to remove orphan staging directory",
				logfields.Path(dir), logfields.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("swept orphan staging directories",
			logfields.Path(docsRoot), logfields.Count(removed))
	}
	return removed, nil
}
