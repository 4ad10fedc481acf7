package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/forum-core/internal/logging"
)

func stopWithin(t *testing.T, s interface{ Stop(context.Context) error }, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Stop(ctx)
}

func TestStopInterruptsWait(t *testing.T) {
	var calls atomic.Int32
	s := New("idle", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithLogger(logging.Discard()))
	assert.Equal(t, Idle, s.State())

	s.Start(context.Background())
	assert.Equal(t, Waiting, s.State())

	start := time.Now()
	require.NoError(t, stopWithin(t, s, time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, Stopped, s.State())
	assert.Zero(t, calls.Load())
}

func TestRunsPassesPeriodically(t *testing.T) {
	var calls atomic.Int32
	s := New("tick", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithInitialDelay(0), WithLogger(logging.Discard()))

	s.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, stopWithin(t, s, time.Second))

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no pass may start after stop")
}

func TestFailingPassesDoNotEndTheLoop(t *testing.T) {
	var calls atomic.Int32
	s := New("flaky", time.Millisecond, func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("transient")
		}
		return nil
	}, WithInitialDelay(0), WithLogger(logging.Discard()))

	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.Passes() >= 3 }, 2*time.Second, time.Millisecond)
	assert.NotEqual(t, Stopped, s.State())
	require.NoError(t, stopWithin(t, s, time.Second))
}

func TestInFlightPassFinishesOnStop(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var passErr atomic.Value
	var finished atomic.Bool

	s := New("slow", time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		passErr.Store(ctx.Err() == nil)
		finished.Store(true)
		return nil
	}, WithInitialDelay(0), WithLogger(logging.Discard()))

	s.Start(context.Background())
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- stopWithin(t, s, 5*time.Second) }()

	require.Eventually(t, func() bool { return s.State() == Stopping }, time.Second, time.Millisecond)
	close(release)

	require.NoError(t, <-stopped)
	assert.True(t, finished.Load())
	assert.Equal(t, true, passErr.Load(), "pass context must not be cancelled by stop")
	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, 1, s.Passes())
}

func TestStopGivesUpAtDeadline(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := New("stuck", time.Hour, func(context.Context) error {
		close(started)
		<-release
		return nil
	}, WithInitialDelay(0), WithLogger(logging.Discard()))

	s.Start(context.Background())
	<-started

	err := stopWithin(t, s, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool { return s.State() == Stopped }, time.Second, time.Millisecond)
}

func TestParentCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New("parent", time.Hour, func(context.Context) error { return nil }, WithLogger(logging.Discard()))
	s.Start(ctx)
	cancel()
	require.Eventually(t, func() bool { return s.State() == Stopped }, time.Second, time.Millisecond)
}

func TestStartIsIdempotentAndStopOnIdle(t *testing.T) {
	s := New("once", time.Hour, func(context.Context) error { return nil }, WithLogger(logging.Discard()))
	require.NoError(t, stopWithin(t, s, time.Second))
	assert.Equal(t, Stopped, s.State())

	s.Start(context.Background())
	assert.Equal(t, Stopped, s.State())
}

func TestGroupStopsAll(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	mk := func(name string) *Sweeper {
		return New(name, time.Millisecond, func(context.Context) error {
			mu.Lock()
			seen[name]++
			mu.Unlock()
			return nil
		}, WithInitialDelay(0), WithLogger(logging.Discard()))
	}
	g := NewGroup(mk("a"))
	g.Add(mk("b"))

	g.Start(context.Background())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["a"] > 0 && seen["b"] > 0
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, stopWithin(t, g, time.Second))
	for _, s := range g.Sweepers() {
		assert.Equal(t, Stopped, s.State(), s.Name())
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting", Waiting.String())
	assert.Equal(t, "State(42)", State(42).String())
}
