package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docsearch/internal/config"
	"git.home.luguber.info/inful/docsearch/internal/crawler"
	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
	"git.home.luguber.info/inful/docsearch/internal/fetcher"
	"git.home.luguber.info/inful/docsearch/internal/gitsync"
	"git.home.luguber.info/inful/docsearch/internal/indexer"
	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/metrics"
	"git.home.luguber.info/inful/docsearch/internal/state"
	"git.home.luguber.info/inful/docsearch/internal/storage"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// idleDequeueWait is how long a drained worker waits before polling the
// queue again while discovery is still running.
const idleDequeueWait = 200 * time.Millisecond

// Crawl progress checkpoint key and phases.
const (
	syncCheckpointKey = "sync_progress"

	syncPhaseRunning  = "running"
	syncPhaseComplete = "complete"
	syncPhaseFailed   = "failed"
)

// syncProgress is persisted at cycle boundaries. A record still in the
// running phase on the next start means the process died mid-crawl; the
// queued work survives in SQLite and the new cycle drains it.
type syncProgress struct {
	Phase      string    `json:"phase"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Discovered int64     `json:"discovered"`
	Fetched    int64     `json:"fetched"`
	Failed     int64     `json:"failed"`
}

// beginSyncCheckpoint detects an interrupted previous cycle and marks
// the new one as running.
func (rt *Runtime) beginSyncCheckpoint(ctx context.Context) syncProgress {
	var prior syncProgress
	found, err := rt.state.LoadCheckpoint(ctx, syncCheckpointKey, &prior)
	if err != nil {
		rt.logger.Warn("load sync checkpoint", logfields.Error(err))
	}
	if found && prior.Phase == syncPhaseRunning {
		depth, _ := rt.state.QueueDepth(ctx)
		rt.logger.Info("resuming interrupted crawl",
			slog.Int("queued", depth),
			slog.Int64("prior_fetched", prior.Fetched))
	}

	cur := syncProgress{Phase: syncPhaseRunning, StartedAt: time.Now()}
	if err := rt.state.SaveCheckpoint(ctx, syncCheckpointKey, cur); err != nil {
		rt.logger.Warn("save sync checkpoint", logfields.Error(err))
	}
	return cur
}

// finishSyncCheckpoint records the cycle outcome and counters.
func (rt *Runtime) finishSyncCheckpoint(ctx context.Context, cur syncProgress, discovered, fetched, failed int64, syncErr error) {
	cur.Phase = syncPhaseComplete
	if syncErr != nil {
		cur.Phase = syncPhaseFailed
	}
	cur.FinishedAt = time.Now()
	cur.Discovered = discovered
	cur.Fetched = fetched
	cur.Failed = failed
	if err := rt.state.SaveCheckpoint(ctx, syncCheckpointKey, cur); err != nil {
		rt.logger.Warn("save sync checkpoint", logfields.Error(err))
	}
}

// runSync is the scheduler's cycle body.
func (rt *Runtime) runSync(ctx context.Context) error {
	switch rt.cfg.SourceType {
	case config.SourceOnline:
		return rt.syncOnline(ctx)
	case config.SourceGit:
		return rt.syncGit(ctx)
	case config.SourceFilesystem:
		// Nothing to pull; the post-sync hook reindexes docs_root.
		return nil
	default:
		return fmt.Errorf("unknown source type %q", rt.cfg.SourceType)
	}
}

// syncOnline runs discovery and the fetch pool under the crawl lock.
// Discovery feeds the queue progressively; workers start draining
// before it finishes.
func (rt *Runtime) syncOnline(ctx context.Context) error {
	if rt.infra.OperationMode == config.ModeOffline {
		rt.logger.Info("offline mode, serving cached corpus")
		return nil
	}

	force := rt.takeForceFlags()

	lease, holder, err := rt.state.TryAcquireLock(ctx, "crawl", rt.lockOwner, crawlLockTTL)
	if err != nil {
		if apperrors.IsDatabaseCritical(err) {
			rt.setDegraded(err)
		}
		return err
	}
	if lease == nil {
		rt.logger.Warn("crawl lock held, skipping cycle", slog.String("holder", holder))
		return fmt.Errorf("crawl lock held by %s", holder)
	}
	defer func() {
		if err := rt.state.ReleaseLock(context.WithoutCancel(ctx), lease); err != nil {
			rt.logger.Warn("release crawl lock", logfields.Error(err))
		}
	}()

	if err := rt.state.RecordEvent(ctx, state.Event{EventType: state.EventCrawlStarted}); err != nil {
		rt.logger.Warn("record crawl start", logfields.Error(err))
	}
	progress := rt.beginSyncCheckpoint(ctx)

	sitemaps, entries := rt.cfg.SeedURLs()
	cr := crawler.New(crawler.Config{
		SitemapURLs: sitemaps,
		EntryURLs:   entries,
		Filter: crawler.URLFilter{
			WhitelistPrefixes: rt.cfg.URLWhitelistPrefixes,
			BlacklistPrefixes: rt.cfg.URLBlacklistPrefixes,
		},
		Timeout: rt.infra.HTTPTimeout(),
	}, rt.rate, rt.logger)
	if force.crawler {
		// Discovery below already walks both sitemaps and entry pages.
		rt.logger.Info("forced crawler discovery requested")
	}

	discoveryDone := make(chan struct{})
	var discovered, fetched, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(discoveryDone)
		urls, err := cr.Crawl(gctx, func(u string) {
			n, enqErr := rt.state.EnqueueURLs(gctx, []string{u}, "crawl_discovered", 0, force.fullSync)
			if enqErr != nil {
				rt.logger.Warn("enqueue discovered url", logfields.URL(u), logfields.Error(enqErr))
				return
			}
			discovered.Add(int64(n))
		})
		if err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		rt.logger.Info("discovery complete", logfields.Count(len(urls)))
		return nil
	})

	workers := rt.infra.MaxConcurrentRequests
	if workers < 1 {
		workers = 1
	}
	for range workers {
		g.Go(func() error {
			for {
				batch, err := rt.state.DequeueBatch(gctx, 1)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					rt.logger.Warn("dequeue", logfields.Error(err))
					if apperrors.IsDatabaseCritical(err) {
						return err
					}
					continue
				}
				if len(batch) == 0 {
					select {
					case <-discoveryDone:
						// One more look so nothing enqueued during the
						// last discovery tick is stranded.
						batch, err = rt.state.DequeueBatch(gctx, 1)
						if err != nil || len(batch) == 0 {
							return nil
						}
					case <-gctx.Done():
						return gctx.Err()
					case <-time.After(idleDequeueWait):
						continue
					}
				}
				for _, u := range batch {
					if err := rt.processURL(gctx, u); err != nil {
						failed.Add(1)
					} else {
						fetched.Add(1)
					}
				}
			}
		})
	}

	err = g.Wait()

	if depth, derr := rt.state.QueueDepth(context.WithoutCancel(ctx)); derr == nil {
		rt.rec.SetQueueDepth(rt.cfg.Codename, depth)
	}
	if ferr := rt.state.RecordEvent(context.WithoutCancel(ctx), state.Event{EventType: state.EventCrawlFinished}); ferr != nil {
		rt.logger.Warn("record crawl finish", logfields.Error(ferr))
	}
	rt.finishSyncCheckpoint(context.WithoutCancel(ctx),
		progress, discovered.Load(), fetched.Load(), failed.Load(), err)
	rt.logger.Info("online sync cycle done",
		slog.Int64("discovered", discovered.Load()),
		slog.Int64("fetched", fetched.Load()),
		slog.Int64("failed", failed.Load()))
	return err
}

// processURL fetches one URL and commits the result. Fetch failures are
// recorded per URL and never abort the pool.
func (rt *Runtime) processURL(ctx context.Context, rawURL string) error {
	if err := rt.conc.Acquire(ctx); err != nil {
		return err
	}
	defer rt.conc.Release()

	start := time.Now()
	doc, err := rt.fetch.Fetch(ctx, rawURL)
	duration := time.Since(start)
	rt.rec.ObserveFetchDuration(rt.cfg.Codename, duration)

	if err != nil {
		reason := fetcher.FailureReason(err)
		if fetcher.IsRateLimited(err) {
			rt.conc.RecordRateLimited()
			rt.rec.IncFetchResult(rt.cfg.Codename, metrics.ResultRateLimited)
		} else {
			rt.rec.IncFetchResult(rt.cfg.Codename, metrics.ResultFailure)
		}
		if rerr := rt.state.RecordFetchFailure(context.WithoutCancel(ctx), rawURL, rawURL, reason, duration); rerr != nil {
			rt.logger.Warn("record fetch failure", logfields.URL(rawURL), logfields.Error(rerr))
		}
		rt.logger.Debug("fetch failed", logfields.URL(rawURL), logfields.Reason(reason))
		return err
	}

	uow, err := storage.Begin(rt.cfg.DocsRootDir)
	if err != nil {
		return err
	}
	rel, err := uow.Add(*doc)
	if err != nil {
		_ = uow.Rollback()
		return err
	}
	if err := uow.Commit(); err != nil {
		_ = uow.Rollback()
		return err
	}

	if err := rt.state.RecordFetchSuccess(context.WithoutCancel(ctx), rawURL, doc.URL, rel, duration); err != nil {
		rt.logger.Warn("record fetch success", logfields.URL(rawURL), logfields.Error(err))
	}
	// The shared rate limiter already saw the success inside Fetch.
	rt.conc.RecordSuccess()
	rt.rec.IncFetchResult(rt.cfg.Codename, metrics.ResultSuccess)
	return nil
}

// syncGit pulls the configured repo and mirrors doc files into
// docs_root.
func (rt *Runtime) syncGit(ctx context.Context) error {
	token := ""
	if rt.cfg.AuthTokenEnv != "" {
		token = os.Getenv(rt.cfg.AuthTokenEnv)
	}
	syncer := gitsync.New(gitsync.Config{
		RepoURL:      rt.cfg.GitRepoURL,
		Branch:       rt.cfg.GitBranch,
		Subpaths:     rt.cfg.GitSubpaths,
		StripPrefix:  rt.cfg.StripPrefix,
		AuthToken:    token,
		WorkspaceDir: filepath.Join(rt.cfg.DocsRootDir, ".git-workspace"),
		DocsRoot:     rt.cfg.DocsRootDir,
	}, rt.logger)

	result, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		rt.logger.Warn("git sync warning", logfields.Reason(w))
	}
	return nil
}

// postSync rebuilds the search index and reloads the active segment.
// Failures here are logged and never fail the sync that triggered them.
func (rt *Runtime) postSync() {
	if !rt.cfg.Search.Enabled {
		return
	}

	ix, err := indexer.New(indexer.TenantContext{
		Codename:             rt.cfg.Codename,
		DocsRoot:             rt.cfg.DocsRootDir,
		SegmentsDir:          filepath.Join(rt.cfg.DocsRootDir, urlpath.SegmentsDirName),
		SourceType:           rt.cfg.SourceType,
		URLWhitelistPrefixes: rt.cfg.URLWhitelistPrefixes,
		URLBlacklistPrefixes: rt.cfg.URLBlacklistPrefixes,
		AnalyzerProfile:      rt.cfg.Search.AnalyzerProfile,
	}, rt.segments, rt.logger)
	if err != nil {
		rt.logger.Error("index rebuild setup failed", logfields.Error(err))
		rt.rec.IncSyncOutcome(rt.cfg.Codename, "failed")
		return
	}

	start := time.Now()
	result, err := ix.BuildSegment(indexer.BuildOptions{Persist: true})
	if err != nil {
		rt.logger.Error("index rebuild failed", logfields.Error(err))
		rt.rec.IncSyncOutcome(rt.cfg.Codename, "failed")
		return
	}
	rt.rec.ObserveSegmentBuild(rt.cfg.Codename, time.Since(start), result.DocumentsIndexed)

	if err := rt.ReloadSearchIndex(); err != nil {
		rt.logger.Warn("segment reload failed", logfields.Error(err))
	}
	rt.rec.IncSyncOutcome(rt.cfg.Codename, "success")
}
