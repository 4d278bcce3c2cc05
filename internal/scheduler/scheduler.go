// Package scheduler runs periodic sync cycles for a tenant. The same
// state machine drives both crawl schedulers (online tenants) and
// git-sync schedulers; the flavor lives entirely in the injected sync
// function.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docsearch/internal/logfields"
)

// errorBackoff is how long the scheduler stays quiet after a failed
// cycle before cron ticks are honored again.
const errorBackoff = 60 * time.Second

// State of the scheduler lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateStopped       State = "stopped"
	StateRunning       State = "running"
	StateStopping      State = "stopping"
)

// SyncFunc runs one sync cycle.
type SyncFunc func(ctx context.Context) error

// Config controls one tenant's scheduler.
type Config struct {
	Name    string
	Enabled bool
	// RefreshSchedule is a five-field cron expression. Empty means
	// manual-only: the scheduler initializes but only TriggerSync runs
	// cycles.
	RefreshSchedule string
}

// Stats is the scheduler's observable state.
type Stats struct {
	State       State     `json:"state"`
	Initialized bool      `json:"initialized"`
	Running     bool      `json:"running"`
	Schedule    string    `json:"schedule,omitempty"`
	Syncs       int       `json:"syncs"`
	Errors      int       `json:"errors"`
	LastSyncAt  time.Time `json:"last_sync_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Scheduler drives sync cycles from cron ticks and manual triggers.
// Cycle errors never kill the loop.
type Scheduler struct {
	cfg        Config
	sync       SyncFunc
	onComplete func()
	logger     *slog.Logger

	mu           sync.Mutex
	state        State
	initialized  bool
	syncing      bool
	syncs        int
	errors       int
	lastSyncAt   time.Time
	lastError    string
	backoffUntil time.Time

	cron   gocron.Scheduler
	cancel context.CancelFunc
}

// New creates a Scheduler. onComplete runs after each successful cycle;
// it may be nil.
func New(cfg Config, syncFn SyncFunc, onComplete func(), logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		sync:       syncFn,
		onComplete: onComplete,
		logger:     logger,
		state:      StateUninitialized,
	}
}

// Initialize starts the background loop. It returns false when the
// tenant has scheduling disabled or no sync function; an invalid cron
// expression is an error.
func (s *Scheduler) Initialize(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled || s.sync == nil {
		return false, nil
	}
	if s.initialized {
		return true, nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.cfg.RefreshSchedule != "" {
		cron, err := gocron.NewScheduler()
		if err != nil {
			cancel()
			return false, fmt.Errorf("create scheduler: %w", err)
		}
		_, err = cron.NewJob(
			gocron.CronJob(s.cfg.RefreshSchedule, false),
			gocron.NewTask(func() { s.runCycle(loopCtx, "schedule") }),
			gocron.WithName(s.cfg.Name+"-sync"),
		)
		if err != nil {
			cancel()
			_ = cron.Shutdown()
			return false, fmt.Errorf("invalid refresh schedule %q: %w", s.cfg.RefreshSchedule, err)
		}
		cron.Start()
		s.cron = cron
	}

	s.initialized = true
	s.state = StateStopped
	s.logger.Info("scheduler initialized",
		logfields.Tenant(s.cfg.Name),
		logfields.Schedule(s.cfg.RefreshSchedule))
	return true, nil
}

// TriggerSync runs one cycle now unless one is already active. The
// cycle runs in the background; the return value reports acceptance.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	s.mu.Lock()
	if !s.initialized || s.syncing || s.state == StateStopping {
		s.mu.Unlock()
		return false
	}
	s.syncing = true
	s.state = StateRunning
	s.mu.Unlock()

	go s.runLocked(context.WithoutCancel(ctx), "trigger")
	return true
}

// runCycle is the cron entry point. Ticks during an active cycle or an
// error backoff window are skipped.
func (s *Scheduler) runCycle(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.syncing || s.state == StateStopping || time.Now().Before(s.backoffUntil) {
		s.mu.Unlock()
		return
	}
	s.syncing = true
	s.state = StateRunning
	s.mu.Unlock()

	s.runLocked(ctx, reason)
}

// runLocked executes one cycle; the caller must have set syncing.
func (s *Scheduler) runLocked(ctx context.Context, reason string) {
	start := time.Now()
	err := s.runSafely(ctx)

	s.mu.Lock()
	s.syncing = false
	if s.state == StateRunning {
		s.state = StateStopped
	}
	s.syncs++
	s.lastSyncAt = time.Now()
	if err != nil {
		s.errors++
		s.lastError = err.Error()
		s.backoffUntil = time.Now().Add(errorBackoff)
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("sync cycle failed",
			logfields.Tenant(s.cfg.Name),
			logfields.Reason(reason),
			logfields.Error(err))
		return
	}

	s.logger.Info("sync cycle complete",
		logfields.Tenant(s.cfg.Name),
		logfields.Reason(reason),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	s.notifyComplete()
}

// runSafely converts a panicking sync function into an error so the
// loop survives.
func (s *Scheduler) runSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panic: %v", r)
		}
	}()
	return s.sync(ctx)
}

// notifyComplete invokes the completion callback; callback failures are
// logged and swallowed.
func (s *Scheduler) notifyComplete() {
	if s.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sync completion callback panicked",
				logfields.Tenant(s.cfg.Name),
				slog.Any("panic", r))
		}
	}()
	s.onComplete()
}

// Stop shuts the scheduler down. In-flight cycles are cancelled via the
// loop context.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	cron := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if cron != nil {
		err = cron.Shutdown()
	}

	s.mu.Lock()
	s.state = StateStopped
	s.initialized = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped", logfields.Tenant(s.cfg.Name))
	return err
}

// Stats returns the current counters and lifecycle flags.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:       s.state,
		Initialized: s.initialized,
		Running:     s.syncing,
		Schedule:    s.cfg.RefreshSchedule,
		Syncs:       s.syncs,
		Errors:      s.errors,
		LastSyncAt:  s.lastSyncAt,
		LastError:   s.lastError,
	}
}
