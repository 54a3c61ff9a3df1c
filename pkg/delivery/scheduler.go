// Package delivery turns bursts of metric updates into debounced snapshot
// sends with bounded linear-backoff retries.
//
// Delivery is best effort: once the retry budget of a cycle is spent the
// snapshot of that cycle is dropped, not queued.
package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Default scheduler configuration constants.
const (
	defaultDebounce     = 2 * time.Second
	defaultMaxRetries   = 3
	defaultRetryStep    = time.Second
	defaultFlushTimeout = 10 * time.Second
)

// ErrClosed is returned by FlushNow once the scheduler is closed.
var ErrClosed = errors.New("delivery scheduler closed")

// FlushFunc performs one delivery attempt of the current snapshot.
type FlushFunc func(ctx context.Context) error

// Scheduler owns the debounce timer, the retry timer and the retry counter
// of one collector.
type Scheduler struct {
	flush FlushFunc
	clock clock.Clock

	mu           sync.Mutex
	debounce     time.Duration
	maxRetries   int
	retryStep    time.Duration
	flushTimeout time.Duration
	debounceT    *clock.Timer
	retryT       *clock.Timer
	debounceGen  uint64
	retryGen     uint64
	retryCount   int
	closed       bool

	logger logger.Logger
}

// NewScheduler creates a scheduler that calls flush for every attempt.
func NewScheduler(flush FlushFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		flush:        flush,
		clock:        clock.New(),
		debounce:     defaultDebounce,
		maxRetries:   defaultMaxRetries,
		retryStep:    defaultRetryStep,
		flushTimeout: defaultFlushTimeout,
		logger:       logger.GetOrNop().Named("delivery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure applies options to a live scheduler. Timers already armed keep
// their original deadline.
func (s *Scheduler) Configure(opts ...Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, opt := range opts {
		opt(s)
	}
}

// Schedule restarts the debounce window. Only the last call in a burst
// results in a send.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.debounceT != nil {
		s.debounceT.Stop()
	}
	s.debounceGen++
	gen := s.debounceGen
	s.debounceT = s.clock.AfterFunc(s.debounce, func() { s.fireDebounce(gen) })
}

// CancelPending stops both the debounce and the retry timer.
func (s *Scheduler) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
}

// FlushNow cancels the pending debounce and sends immediately. A failure
// enters the normal retry path and is also returned.
func (s *Scheduler) FlushNow(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.debounceT != nil {
		s.debounceT.Stop()
		s.debounceT = nil
	}
	s.debounceGen++
	s.mu.Unlock()

	err := s.attempt(ctx)
	s.settle(err)
	return err
}

// Close cancels every timer and performs one final attempt without retry.
// Schedule calls after Close are ignored.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.stopTimersLocked()
	s.retryCount = 0
	s.mu.Unlock()

	err := s.attempt(ctx)
	if err != nil {
		metrics.RecordDeliveryDropped()
		s.logger.Warn(ctx, "final metrics delivery failed", logger.Error(err))
	}
	return err
}

// Pending reports whether a debounce or retry timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debounceT != nil || s.retryT != nil
}

// RetryCount returns the number of retries spent in the current cycle.
func (s *Scheduler) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

func (s *Scheduler) fireDebounce(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.debounceGen {
		s.mu.Unlock()
		return
	}
	s.debounceT = nil
	s.mu.Unlock()
	s.fire()
}

func (s *Scheduler) fireRetry(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.retryGen {
		s.mu.Unlock()
		return
	}
	s.retryT = nil
	s.mu.Unlock()
	s.fire()
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	timeout := s.flushTimeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.settle(s.attempt(ctx))
}

func (s *Scheduler) attempt(ctx context.Context) error {
	metrics.RecordDeliveryAttempt()
	if err := s.flush(ctx); err != nil {
		metrics.RecordDeliveryFailure()
		return err
	}
	metrics.RecordDeliverySuccess()
	return nil
}

// settle applies the retry policy to the outcome of an attempt.
func (s *Scheduler) settle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.retryCount = 0
		return
	}
	if s.closed {
		return
	}
	if s.retryCount < s.maxRetries {
		delay := s.retryStep * time.Duration(s.retryCount+1)
		s.retryCount++
		if s.retryT != nil {
			s.retryT.Stop()
		}
		s.retryGen++
		gen := s.retryGen
		s.retryT = s.clock.AfterFunc(delay, func() { s.fireRetry(gen) })
		metrics.RecordDeliveryRetry()
		s.logger.Debug(context.Background(), "metrics delivery failed, retrying",
			logger.Int("retry", s.retryCount),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
		return
	}

	s.retryCount = 0
	metrics.RecordDeliveryDropped()
	s.logger.Warn(context.Background(), "metrics delivery failed after max retries",
		logger.Int("maxRetries", s.maxRetries),
		logger.Error(err),
	)
}

// stopTimersLocked also invalidates callbacks that already left their timer.
func (s *Scheduler) stopTimersLocked() {
	s.debounceGen++
	s.retryGen++
	if s.debounceT != nil {
		s.debounceT.Stop()
		s.debounceT = nil
	}
	if s.retryT != nil {
		s.retryT.Stop()
		s.retryT = nil
	}
}
