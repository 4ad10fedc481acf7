// Package sweeper runs periodic background maintenance passes.
//
// A Sweeper waits, runs one pass, waits again, and so on until it is
// stopped.  Cancellation is observed before every wait and during it.  A
// pass that has started is never interrupted: it receives a context that
// is detached from cancellation and Stop waits for it, bounded by the
// caller's own deadline.  Errors and panics inside a pass are logged and
// the loop carries on.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/iliyamo/forum-core/internal/logging"
)

// State is the lifecycle position of a Sweeper.
type State int32

const (
	Idle State = iota
	Waiting
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Pass is one unit of periodic work.
type Pass func(ctx context.Context) error

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInitialDelay sets the wait before the first pass.  It defaults to
// the interval.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Sweeper) { s.initialDelay = d }
}

// WithLogger sets the logger; the sweeper name is attached to every record.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// Sweeper runs a Pass every interval.
type Sweeper struct {
	name         string
	every        time.Duration
	initialDelay time.Duration
	pass         Pass
	logger       *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	passes int
}

// New returns an idle Sweeper.  A non-positive interval is replaced by one
// minute so a misconfiguration cannot turn into a busy loop.
func New(name string, every time.Duration, pass Pass, opts ...Option) *Sweeper {
	if every <= 0 {
		every = time.Minute
	}
	s := &Sweeper{name: name, every: every, initialDelay: every, pass: pass}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger).With("sweeper", name)
	return s
}

// Name returns the sweeper name.
func (s *Sweeper) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Sweeper) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Passes returns how many passes have completed, successfully or not.
func (s *Sweeper) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

func (s *Sweeper) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Stopping is sticky until the loop exits.
	if s.state == Stopping && st != Stopped {
		return
	}
	s.state = st
}

// Start launches the loop.  It returns at once; calling it on a sweeper
// that is not idle does nothing.  The loop ends when ctx is cancelled or
// Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.state = Waiting
	go s.loop(ctx)
	s.logger.Info("sweeper started", "every", s.every, "initial_delay", s.initialDelay)
}

// Stop cancels the loop and waits until it has exited, letting an
// in-flight pass finish.  If ctx ends first its error is returned and the
// loop keeps winding down in the background.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.state = Stopped
		s.mu.Unlock()
		return nil
	case Stopped:
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("sweeper did not stop in time", "err", ctx.Err())
		return fmt.Errorf("sweeper %s: %w", s.name, ctx.Err())
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer func() {
		s.setState(Stopped)
		close(s.done)
		s.logger.Info("sweeper stopped")
	}()

	delay := s.initialDelay
	for {
		// Cancellation is checked before the wait begins...
		if ctx.Err() != nil {
			return
		}
		s.setState(Waiting)
		// ...and while it is in progress.
		if !wait(ctx, delay) {
			return
		}
		s.setState(Running)
		s.run(context.WithoutCancel(ctx))
		delay = s.every
	}
}

// run executes one pass, converting a panic into a logged error.
func (s *Sweeper) run(ctx context.Context) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("sweep pass panicked", "panic", p, "stack", string(debug.Stack()))
		}
		s.mu.Lock()
		s.passes++
		s.mu.Unlock()
	}()
	if err := s.pass(ctx); err != nil {
		s.logger.Error("sweep pass failed", "err", err, "took", time.Since(start))
		return
	}
	s.logger.Debug("sweep pass done", "took", time.Since(start))
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
