// Package poller runs one single-flight refresh loop per view.
//
// A Synchronizer fetches immediately on Start and then once per interval.
// At most one fetch is outstanding at any time; a tick or a manual refresh
// that arrives while a fetch is running is dropped, not queued. Failures are
// reported to the handler and the loop keeps going, except for errors the
// Fatal classifier marks, which halt scheduling for good.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("synchronizer already started")
	ErrNilFetch       = errors.New("synchronizer needs a fetch function and a handler")
)

type FetchFunc[T any] func(ctx context.Context) (T, error)

// Handler receives fetch outcomes. Calls are serialized. A handler may call
// Refresh, Pause or Resume but must not call Stop.
type Handler[T any] interface {
	OnResult(v T)
	OnError(err error, fatal bool)
}

// Funcs adapts two plain functions to Handler. Nil fields are skipped.
type Funcs[T any] struct {
	Result func(T)
	Error  func(error, bool)
}

func (f Funcs[T]) OnResult(v T) {
	if f.Result != nil {
		f.Result(v)
	}
}

func (f Funcs[T]) OnError(err error, fatal bool) {
	if f.Error != nil {
		f.Error(err, fatal)
	}
}

type Options struct {
	// Interval between scheduled fetches. Zero disables the timer: the
	// synchronizer then fetches on Start, Resume and Refresh only.
	Interval time.Duration
	// Timeout bounds a single fetch. Zero means no timeout.
	Timeout time.Duration
	// MaxBackoff caps the doubling of Interval after consecutive failures.
	// Zero keeps the interval fixed.
	MaxBackoff time.Duration
	// Fatal marks errors that must halt scheduling.
	Fatal func(error) bool
}

type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "halted"
	}
}

type Stats struct {
	Fetches             uint64
	Failures            uint64
	Skipped             uint64
	ConsecutiveFailures int
	LastSuccess         time.Time
	LastFailure         time.Time
}

type Synchronizer[T any] struct {
	fetch   FetchFunc[T]
	handler Handler[T]
	opts    Options

	mu       sync.Mutex
	state    State
	inflight bool
	// gen is bumped by Stop and by a fatal error; deliveries from an older
	// generation are dropped.
	gen        uint64
	ctx        context.Context
	cancel     context.CancelFunc
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
	stats      Stats

	// deliverMu is held while a result is checked and handed to the handler.
	deliverMu sync.Mutex
	// settled wakes the loop when a fetch outcome is recorded.
	settled chan struct{}
}

func New[T any](fetch FetchFunc[T], handler Handler[T], opts Options) (*Synchronizer[T], error) {
	if fetch == nil || handler == nil {
		return nil, ErrNilFetch
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	return &Synchronizer[T]{
		fetch:   fetch,
		handler: handler,
		opts:    opts,
		settled: make(chan struct{}, 1),
	}, nil
}

// Start fetches immediately and schedules the following fetches. Canceling
// ctx abandons outstanding fetches and ends scheduling.
func (s *Synchronizer[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateRunning
	s.startLoopLocked()
	s.mu.Unlock()

	s.tryFetch(false)
	return nil
}

// Refresh triggers an out-of-cycle fetch. It works while paused, leaves the
// timer phase alone and reports whether a fetch was actually started.
func (s *Synchronizer[T]) Refresh() bool {
	return s.tryFetch(true)
}

// Pause stops scheduling. The last delivered result stays with the handler
// and an outstanding fetch still completes.
func (s *Synchronizer[T]) Pause() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StatePaused
	cancelLoop, done := s.detachLoopLocked()
	s.mu.Unlock()

	waitLoop(cancelLoop, done)
}

// Resume restarts scheduling with an immediate fetch.
func (s *Synchronizer[T]) Resume() {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.startLoopLocked()
	s.mu.Unlock()

	s.tryFetch(false)
}

// Stop ends scheduling and abandons any outstanding fetch. Once Stop returns
// the handler is never called again.
func (s *Synchronizer[T]) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.gen++
	cancelLoop, done := s.detachLoopLocked()
	cancel := s.cancel
	s.mu.Unlock()

	waitLoop(cancelLoop, done)
	if cancel != nil {
		cancel()
	}

	// wait out a delivery that passed the generation check before gen++
	s.deliverMu.Lock()
	s.deliverMu.Unlock() //nolint:staticcheck
}

func (s *Synchronizer[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// InFlight reports whether a fetch is outstanding.
func (s *Synchronizer[T]) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

func (s *Synchronizer[T]) startLoopLocked() {
	if s.opts.Interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.cancelLoop, s.loopDone = cancel, done
	go s.loop(ctx, done)
}

func (s *Synchronizer[T]) detachLoopLocked() (context.CancelFunc, chan struct{}) {
	cancel, done := s.cancelLoop, s.loopDone
	s.cancelLoop, s.loopDone = nil, nil
	return cancel, done
}

func waitLoop(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// loop schedules each tick nextDelay after the previous one. The delay is
// recomputed whenever a fetch settles, so a failure pushes the pending tick
// back as soon as it is known.
func (s *Synchronizer[T]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	last := time.Now()
	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			last = time.Now()
			s.tryFetch(false)
			timer.Reset(s.nextDelay())
		case <-s.settled:
			timer.Stop()
			timer.Reset(time.Until(last.Add(s.nextDelay())))
		}
	}
}

// nextDelay doubles the interval per consecutive failure up to MaxBackoff.
func (s *Synchronizer[T]) nextDelay() time.Duration {
	s.mu.Lock()
	failures := s.stats.ConsecutiveFailures
	s.mu.Unlock()
	return backoff(s.opts.Interval, s.opts.MaxBackoff, failures)
}

func backoff(interval, maxBackoff time.Duration, failures int) time.Duration {
	if maxBackoff <= interval {
		return interval
	}
	d := interval
	for i := 0; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (s *Synchronizer[T]) tryFetch(manual bool) bool {
	s.mu.Lock()
	switch {
	case s.state == StateRunning:
	case s.state == StatePaused && manual:
	default:
		s.mu.Unlock()
		return false
	}
	if s.inflight {
		s.stats.Skipped++
		s.mu.Unlock()
		return false
	}
	s.inflight = true
	s.stats.Fetches++
	gen, ctx := s.gen, s.ctx
	s.mu.Unlock()

	go s.run(ctx, gen)
	return true
}

func (s *Synchronizer[T]) run(ctx context.Context, gen uint64) {
	fctx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	v, err := s.fetch(fctx)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.inflight = false
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	fatal := false
	now := time.Now()
	if err != nil {
		s.stats.Failures++
		s.stats.ConsecutiveFailures++
		s.stats.LastFailure = now
		if s.opts.Fatal != nil && s.opts.Fatal(err) {
			fatal = true
			s.state = StateHalted
			s.gen++
		}
	} else {
		s.stats.ConsecutiveFailures = 0
		s.stats.LastSuccess = now
	}
	var cancelLoop context.CancelFunc
	if fatal {
		// the loop goroutine exits on its own; nothing waits for it here
		cancelLoop, _ = s.detachLoopLocked()
	}
	s.mu.Unlock()

	if cancelLoop != nil {
		cancelLoop()
	} else {
		select {
		case s.settled <- struct{}{}:
		default:
		}
	}
	if err != nil {
		s.handler.OnError(err, fatal)
		return
	}
	s.handler.OnResult(v)
}
