// Package tenant assembles the per-tenant pipeline: state store,
// fetcher, crawler, git syncer, indexer, scheduler and search engine
// behind one runtime object.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docsearch/internal/config"
	"git.home.luguber.info/inful/docsearch/internal/fetcher"
	"git.home.luguber.info/inful/docsearch/internal/limiter"
	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/metrics"
	"git.home.luguber.info/inful/docsearch/internal/scheduler"
	"git.home.luguber.info/inful/docsearch/internal/search"
	"git.home.luguber.info/inful/docsearch/internal/segment"
	"git.home.luguber.info/inful/docsearch/internal/state"
	"git.home.luguber.info/inful/docsearch/internal/storage"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// Runtime status values.
const (
	StatusActive   = "active"
	StatusDegraded = "degraded"
)

// CrawlStateFile is the per-tenant SQLite state database under docs_root.
const CrawlStateFile = ".crawl_state.sqlite"

// CookieFile persists fetch sessions between runs.
const CookieFile = ".cookies.json"

// crawlLockTTL bounds how long a crashed sync can hold the crawl lock.
const crawlLockTTL = 30 * time.Minute

// Runtime is one tenant's assembled pipeline.
type Runtime struct {
	cfg    config.Tenant
	infra  config.Infrastructure
	logger *slog.Logger
	rec    metrics.Recorder

	repo     *storage.Repository
	segments *segment.Store
	engine   *search.Engine
	snippet  search.SnippetConfig

	state *state.Store     // online tenants only
	fetch *fetcher.Fetcher // online tenants only
	rate  *limiter.AdaptiveRateLimiter
	conc  *limiter.AdaptiveConcurrencyLimiter
	sched *scheduler.Scheduler
	watch *reindexWatcher

	lockOwner string

	mu       sync.RWMutex
	active   *segment.Segment
	degraded bool
	force    forceFlags
}

type forceFlags struct {
	crawler  bool
	fullSync bool
}

// New builds a runtime from validated configuration. No network or
// scheduler activity starts until Initialize.
func New(cfg config.Tenant, infra config.Infrastructure, rec metrics.Recorder, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	logger = logger.With(logfields.Tenant(cfg.Codename))

	repo, err := storage.NewRepository(cfg.DocsRootDir)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", cfg.Codename, err)
	}
	segments, err := segment.NewStore(filepath.Join(cfg.DocsRootDir, urlpath.SegmentsDirName), 0)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", cfg.Codename, err)
	}

	rt := &Runtime{
		cfg:      cfg,
		infra:    infra,
		logger:   logger,
		rec:      rec,
		repo:     repo,
		segments: segments,
		rate:     limiter.NewAdaptiveRateLimiter(),
		conc:     limiter.NewAdaptiveConcurrencyLimiter(0, infra.MaxConcurrentRequests),
		engine: search.NewEngine(search.Config{
			K1:                   cfg.Search.Ranking.BM25K1,
			B:                    cfg.Search.Ranking.BM25B,
			Boosts:               cfg.Search.Boosts,
			EnableProximityBonus: cfg.Search.Ranking.EnableProximityBonus,
			EnableLanguageBoost:  true,
			AnalyzerProfile:      cfg.Search.AnalyzerProfile,
		}),
		snippet: search.SnippetConfig{
			MaxLength:      cfg.Search.Snippet.FragmentCharLimit,
			BoundaryBudget: 100,
			MaxHighlights:  cfg.Search.Snippet.MaxFragments,
			Style:          cfg.Search.Snippet.Style,
		},
		lockOwner: lockOwner(),
	}

	if cfg.SourceType == config.SourceOnline {
		st, err := state.Open(filepath.Join(cfg.DocsRootDir, CrawlStateFile))
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", cfg.Codename, err)
		}
		rt.state = st

		fcfg := fetcher.Config{
			Timeout:    infra.HTTPTimeout(),
			CookieFile: filepath.Join(cfg.DocsRootDir, CookieFile),
		}
		if infra.ArticleExtractorFallback.Enabled {
			fcfg.FallbackServiceURL = infra.ArticleExtractorFallback.Endpoint
			fcfg.FallbackMaxRetries = infra.ArticleExtractorFallback.MaxRetries
		}
		f, err := fetcher.New(fcfg, rt.rate, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("tenant %s: %w", cfg.Codename, err)
		}
		rt.fetch = f
	}

	rt.sched = scheduler.New(scheduler.Config{
		Name:            cfg.Codename,
		Enabled:         rt.syncEnabled(),
		RefreshSchedule: cfg.RefreshSchedule,
	}, rt.runSync, rt.postSync, logger)

	return rt, nil
}

// syncEnabled reports whether this tenant has a sync cycle at all.
// Online tenants go manual-and-cron only when the service itself is
// online; offline mode serves the cached corpus.
func (rt *Runtime) syncEnabled() bool {
	if rt.cfg.SourceType == config.SourceOnline {
		return rt.infra.OperationMode == config.ModeOnline
	}
	return true
}

// Initialize sweeps stale staging dirs, starts the scheduler, warms the
// search index from the latest persisted segment and, for filesystem
// tenants, begins watching docs_root for edits.
func (rt *Runtime) Initialize(ctx context.Context) error {
	if n, err := storage.SweepOrphanStaging(rt.cfg.DocsRootDir, storage.DefaultStagingMaxAge, rt.logger); err != nil {
		rt.logger.Warn("staging sweep failed", logfields.Error(err))
	} else if n > 0 {
		rt.logger.Info("removed orphan staging dirs", logfields.Count(n))
	}

	if _, err := rt.sched.Initialize(ctx); err != nil {
		return fmt.Errorf("tenant %s: %w", rt.cfg.Codename, err)
	}

	if rt.cfg.Search.Enabled {
		if err := rt.ReloadSearchIndex(); err != nil {
			rt.logger.Warn("index warmup failed", logfields.Error(err))
		}
	}

	if rt.cfg.SourceType == config.SourceFilesystem {
		w, err := newReindexWatcher(rt.cfg.DocsRootDir, func() {
			rt.sched.TriggerSync(context.Background())
		}, rt.logger)
		if err != nil {
			rt.logger.Warn("filesystem watch unavailable", logfields.Error(err))
		} else {
			rt.watch = w
		}
	}

	// Initial cycle so a fresh online or git tenant serves content
	// before the first cron tick. Filesystem tenants already warmed
	// from the persisted segment and are covered by the watcher.
	if rt.syncEnabled() && rt.cfg.SourceType != config.SourceFilesystem {
		if !rt.sched.TriggerSync(ctx) {
			rt.logger.Warn("initial sync not admitted")
		}
	}

	rt.logger.Info("tenant initialized",
		slog.String("source_type", rt.cfg.SourceType),
		slog.Bool("search_enabled", rt.cfg.Search.Enabled))
	return nil
}

// Codename returns the tenant identifier.
func (rt *Runtime) Codename() string { return rt.cfg.Codename }

// TriggerResponse reports admission of a manual sync request, not its
// completion.
type TriggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TriggerSync requests an immediate sync cycle. forceCrawler re-runs
// discovery even when a sitemap exists; forceFullSync refetches URLs
// inside the min-fetch-interval.
func (rt *Runtime) TriggerSync(ctx context.Context, forceCrawler, forceFullSync bool) TriggerResponse {
	rt.mu.Lock()
	rt.force.crawler = rt.force.crawler || forceCrawler
	rt.force.fullSync = rt.force.fullSync || forceFullSync
	rt.mu.Unlock()

	if !rt.sched.TriggerSync(ctx) {
		return TriggerResponse{Success: false, Message: "sync already in progress"}
	}
	return TriggerResponse{Success: true, Message: "sync started"}
}

// SyncNow runs a full sync cycle inline, bypassing the scheduler. The
// one-shot CLI command uses it; the API path goes through TriggerSync.
func (rt *Runtime) SyncNow(ctx context.Context, forceCrawler, forceFullSync bool) error {
	rt.mu.Lock()
	rt.force.crawler = rt.force.crawler || forceCrawler
	rt.force.fullSync = rt.force.fullSync || forceFullSync
	rt.mu.Unlock()

	if err := rt.runSync(ctx); err != nil {
		return err
	}
	rt.postSync()
	return nil
}

// takeForceFlags consumes the pending force flags for one cycle.
func (rt *Runtime) takeForceFlags() forceFlags {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	f := rt.force
	rt.force = forceFlags{}
	return f
}

// ReloadSearchIndex swaps the active segment to the latest persisted
// one. The previous segment is closed after the swap; close errors are
// warnings.
func (rt *Runtime) ReloadSearchIndex() error {
	id, err := rt.segments.LatestSegmentID()
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}

	rt.mu.RLock()
	current := rt.active
	rt.mu.RUnlock()
	if current != nil && current.ID() == id {
		return nil
	}

	seg, err := rt.segments.Load(id)
	if err != nil {
		return fmt.Errorf("load segment %s: %w", id, err)
	}

	rt.mu.Lock()
	previous := rt.active
	rt.active = seg
	rt.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			rt.logger.Warn("closing replaced segment", logfields.Segment(previous.ID()), logfields.Error(err))
		}
	}

	rt.rec.SetIndexedDocuments(rt.cfg.Codename, seg.DocCount())
	rt.logger.Info("search index reloaded", logfields.Segment(id), logfields.Count(seg.DocCount()))
	return nil
}

// activeSegment returns the current segment, lazily loading the latest
// persisted one on first use.
func (rt *Runtime) activeSegment() *segment.Segment {
	rt.mu.RLock()
	seg := rt.active
	rt.mu.RUnlock()
	if seg != nil {
		return seg
	}
	if err := rt.ReloadSearchIndex(); err != nil {
		rt.logger.Warn("lazy index load failed", logfields.Error(err))
		return nil
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.active
}

func (rt *Runtime) setDegraded(reason error) {
	rt.mu.Lock()
	already := rt.degraded
	rt.degraded = true
	rt.mu.Unlock()
	if !already {
		rt.logger.Error("tenant degraded to read-only", logfields.Error(reason))
	}
}

// Health is the tenant's aggregated status snapshot.
type Health struct {
	Codename      string                   `json:"codename"`
	Status        string                   `json:"status"`
	SourceType    string                   `json:"source_type"`
	SearchEnabled bool                     `json:"search_enabled"`
	DocumentCount int                      `json:"document_count"`
	Scheduler     scheduler.Stats          `json:"scheduler"`
	Fetcher       *fetcher.MetricsSnapshot `json:"fetcher,omitempty"`
	QueueDepth    int                      `json:"queue_depth,omitempty"`
}

// Health reports the runtime's current status.
func (rt *Runtime) Health(ctx context.Context) Health {
	rt.mu.RLock()
	degraded := rt.degraded
	active := rt.active
	rt.mu.RUnlock()

	h := Health{
		Codename:      rt.cfg.Codename,
		Status:        StatusActive,
		SourceType:    rt.cfg.SourceType,
		SearchEnabled: rt.cfg.Search.Enabled,
		Scheduler:     rt.sched.Stats(),
	}
	if degraded {
		h.Status = StatusDegraded
	}
	if active != nil {
		h.DocumentCount = active.DocCount()
	}
	if rt.fetch != nil {
		snap := rt.fetch.Metrics()
		h.Fetcher = &snap
	}
	if rt.state != nil {
		if depth, err := rt.state.QueueDepth(ctx); err == nil {
			h.QueueDepth = depth
		}
	}
	return h
}

// SyncStatus is the sync-oriented status view served by the API.
type SyncStatus struct {
	SchedulerInitialized bool      `json:"scheduler_initialized"`
	SchedulerRunning     bool      `json:"scheduler_running"`
	Stats                SyncStats `json:"stats"`
}

// SyncStats merges scheduler, queue and fetcher counters.
type SyncStats struct {
	Mode            string                   `json:"mode"`
	SourceType      string                   `json:"source_type"`
	Schedule        string                   `json:"schedule,omitempty"`
	Syncs           int                      `json:"syncs"`
	Errors          int                      `json:"errors"`
	LastSyncAt      time.Time                `json:"last_sync_at,omitzero"`
	LastError       string                   `json:"last_error,omitempty"`
	QueueDepth      int                      `json:"queue_depth"`
	Metadata        *state.StatusSnapshot    `json:"metadata,omitempty"`
	Fetcher         *fetcher.MetricsSnapshot `json:"fetcher,omitempty"`
	Limiter         *limiter.Snapshot        `json:"limiter,omitempty"`
	FallbackEnabled bool                     `json:"fallback_enabled"`
}

// SyncStatus reports scheduler and ingestion state.
func (rt *Runtime) SyncStatus(ctx context.Context) SyncStatus {
	stats := rt.sched.Stats()
	out := SyncStatus{
		SchedulerInitialized: stats.Initialized,
		SchedulerRunning:     stats.Running,
		Stats: SyncStats{
			Mode:            rt.infra.OperationMode,
			SourceType:      rt.cfg.SourceType,
			Schedule:        stats.Schedule,
			Syncs:           stats.Syncs,
			Errors:          stats.Errors,
			LastSyncAt:      stats.LastSyncAt,
			LastError:       stats.LastError,
			FallbackEnabled: rt.infra.ArticleExtractorFallback.Enabled,
		},
	}
	if rt.state != nil {
		if snap, err := rt.state.GetStatusSnapshot(ctx); err == nil {
			out.Stats.Metadata = &snap
			out.Stats.QueueDepth = snap.QueueDepth
		}
	}
	if rt.fetch != nil {
		snap := rt.fetch.Metrics()
		out.Stats.Fetcher = &snap
	}
	if rt.conc != nil {
		snap := rt.conc.Snapshot()
		out.Stats.Limiter = &snap
	}
	return out
}

// Shutdown stops the scheduler and releases file handles. Safe to call
// more than once.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	if rt.watch != nil {
		rt.watch.Close()
		rt.watch = nil
	}
	if err := rt.sched.Stop(); err != nil {
		errs = append(errs, err)
	}
	if rt.fetch != nil {
		if err := rt.fetch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.state != nil {
		if err := rt.state.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	rt.mu.Lock()
	active := rt.active
	rt.active = nil
	rt.mu.Unlock()
	if active != nil {
		if err := active.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("tenant %s shutdown: %w", rt.cfg.Codename, errs[0])
	}
	return nil
}

func lockOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "docsearch"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
