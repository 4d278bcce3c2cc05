package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !s.Stats().Running
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInitializeDisabled(t *testing.T) {
	s := New(Config{Name: "t", Enabled: false}, func(context.Context) error { return nil }, nil, testLogger())
	ok, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Stats().Initialized)
}

func TestInitializeWithoutSyncFunc(t *testing.T) {
	s := New(Config{Name: "t", Enabled: true}, nil, nil, testLogger())
	ok, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidCronIsError(t *testing.T) {
	s := New(Config{Name: "t", Enabled: true, RefreshSchedule: "not a cron"},
		func(context.Context) error { return nil }, nil, testLogger())
	_, err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh schedule")
}

func TestManualOnlyTriggerSync(t *testing.T) {
	var runs atomic.Int32
	s := New(Config{Name: "t", Enabled: true},
		func(context.Context) error { runs.Add(1); return nil }, nil, testLogger())

	ok, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = s.Stop() }()

	assert.True(t, s.TriggerSync(context.Background()))
	waitIdle(t, s)

	stats := s.Stats()
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, 1, stats.Syncs)
	assert.Equal(t, 0, stats.Errors)
	assert.False(t, stats.LastSyncAt.IsZero())
}

func TestTriggerSyncRejectedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	s := New(Config{Name: "t", Enabled: true},
		func(ctx context.Context) error { <-release; return nil }, nil, testLogger())

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	require.True(t, s.TriggerSync(context.Background()))
	assert.False(t, s.TriggerSync(context.Background()), "second trigger while active must be rejected")

	close(release)
	waitIdle(t, s)
	assert.True(t, s.TriggerSync(context.Background()))
	waitIdle(t, s)
}

func TestSyncErrorCountsAndBacksOff(t *testing.T) {
	s := New(Config{Name: "t", Enabled: true},
		func(context.Context) error { return errors.New("boom") }, nil, testLogger())

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	require.True(t, s.TriggerSync(context.Background()))
	waitIdle(t, s)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, "boom", stats.LastError)

	s.mu.Lock()
	backoff := s.backoffUntil
	s.mu.Unlock()
	assert.True(t, backoff.After(time.Now()), "error should arm the backoff window")
}

func TestSyncPanicDoesNotKillScheduler(t *testing.T) {
	s := New(Config{Name: "t", Enabled: true},
		func(context.Context) error { panic("kaboom") }, nil, testLogger())

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	require.True(t, s.TriggerSync(context.Background()))
	waitIdle(t, s)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Errors)
	assert.Contains(t, stats.LastError, "kaboom")
}

func TestOnCompleteCallback(t *testing.T) {
	var completed atomic.Int32
	s := New(Config{Name: "t", Enabled: true},
		func(context.Context) error { return nil },
		func() { completed.Add(1) }, testLogger())

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	require.True(t, s.TriggerSync(context.Background()))
	require.Eventually(t, func() bool { return completed.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestOnCompletePanicIsSwallowed(t *testing.T) {
	s := New(Config{Name: "t", Enabled: true},
		func(context.Context) error { return nil },
		func() { panic("callback boom") }, testLogger())

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	require.True(t, s.TriggerSync(context.Background()))
	waitIdle(t, s)
	assert.Equal(t, 0, s.Stats().Errors)
}

func TestStopTransitionsState(t *testing.T) {
	s := New(Config{Name: "t", Enabled: true, RefreshSchedule: "*/5 * * * *"},
		func(context.Context) error { return nil }, nil, testLogger())

	ok, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateStopped, s.Stats().State)

	require.NoError(t, s.Stop())
	stats := s.Stats()
	assert.Equal(t, StateStopped, stats.State)
	assert.False(t, stats.Initialized)

	assert.False(t, s.TriggerSync(context.Background()), "stopped scheduler rejects triggers")
}
