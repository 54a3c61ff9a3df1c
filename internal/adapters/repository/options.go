package repository

import (
	"time"

	"github.com/okian/pulse/pkg/logger"
)

// options are shared by every store implementation.
type options struct {
	maxRecords int
	location   *time.Location
	logger     logger.Logger

	redisKey        string
	connectAttempts uint
	connectDelay    time.Duration
}

func defaultOptions() options {
	return options{
		maxRecords: DefaultMaxRecords,
		location:   time.Local,
		logger:     logger.GetOrNop().Named("store"),

		redisKey:        DefaultRedisKey,
		connectAttempts: 5,
		connectDelay:    500 * time.Millisecond,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithMaxRecords sets the retention cap.
func WithMaxRecords(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecords = n
		}
	}
}

// WithLocation sets the time zone in which filter days are resolved.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRedisKey sets the list key of the Redis store.
func WithRedisKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.redisKey = key
		}
	}
}

// WithConnectRetry sets how often and how far apart the Redis store pings
// the server on startup.
func WithConnectRetry(attempts uint, delay time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.connectAttempts = attempts
		}
		if delay > 0 {
			o.connectDelay = delay
		}
	}
}
