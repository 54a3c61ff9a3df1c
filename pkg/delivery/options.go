package delivery

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/pulse/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithMaxRetries sets how many retries follow a failed attempt.
func WithMaxRetries(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryStep sets the linear backoff step; retry k waits k*step.
func WithRetryStep(step time.Duration) Option {
	return func(s *Scheduler) {
		if step > 0 {
			s.retryStep = step
		}
	}
}

// WithFlushTimeout bounds each timer-driven attempt.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.flushTimeout = d
		}
	}
}

// WithClock replaces the wall clock, typically with clock.NewMock in tests.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
