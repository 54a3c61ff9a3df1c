package collector

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/pulse/pkg/logger"
)

// Default collector configuration constants.
const (
	DefaultAPIEndpoint  = "/api/metrics"
	DefaultDebounceTime = 2 * time.Second
	DefaultMaxRetries   = 3
)

// Config is the live configuration of a collector.
type Config struct {
	APIEndpoint         string
	AppName             string
	UserID              string
	EnableErrorTracking bool
	EnableCustomMetrics bool
	DebounceTime        time.Duration
	MaxRetries          int
}

// DefaultConfig returns the defaults applied before options.
func DefaultConfig() Config {
	return Config{
		APIEndpoint:         DefaultAPIEndpoint,
		EnableErrorTracking: true,
		EnableCustomMetrics: true,
		DebounceTime:        DefaultDebounceTime,
		MaxRetries:          DefaultMaxRetries,
	}
}

// settings is what options mutate: the config plus construction-only wiring.
type settings struct {
	cfg        Config
	platform   Platform
	dispatcher Dispatcher
	clock      clock.Clock
	logger     logger.Logger
}

// Option configures a collector at construction or through UpdateConfig.
// Wiring options (platform, dispatcher, clock, logger) only take effect at
// construction.
type Option func(*settings)

// WithAPIEndpoint sets the delivery URL or path.
func WithAPIEndpoint(endpoint string) Option {
	return func(s *settings) {
		if endpoint != "" {
			s.cfg.APIEndpoint = endpoint
		}
	}
}

// WithAppName labels every record with the application name.
func WithAppName(name string) Option {
	return func(s *settings) { s.cfg.AppName = name }
}

// WithUserID attaches a user id to the session.
func WithUserID(id string) Option {
	return func(s *settings) { s.cfg.UserID = id }
}

// WithErrorTracking toggles uncaught error capture.
func WithErrorTracking(enabled bool) Option {
	return func(s *settings) { s.cfg.EnableErrorTracking = enabled }
}

// WithCustomMetrics toggles custom metrics and timers.
func WithCustomMetrics(enabled bool) Option {
	return func(s *settings) { s.cfg.EnableCustomMetrics = enabled }
}

// WithDebounceTime sets the delivery debounce window.
func WithDebounceTime(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.cfg.DebounceTime = d
		}
	}
}

// WithMaxRetries sets the number of retries after a failed delivery.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.cfg.MaxRetries = n
		}
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithPlatform sets the host platform. Defaults to Headless.
func WithPlatform(p Platform) Option {
	return func(s *settings) {
		if p != nil {
			s.platform = p
		}
	}
}

// WithDispatcher sets the delivery transport. Without it the collector POSTs
// to APIEndpoint directly, which then has to be an absolute http(s) URL.
func WithDispatcher(d Dispatcher) Option {
	return func(s *settings) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithClock sets the clock driving the delivery timers.
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
