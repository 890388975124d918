package ratelimit

import (
	"log/slog"
	"time"

	"shortener/pkg/metrics"
)

const (
	// DefaultStoreTimeout bounds every store call made during a check
	DefaultStoreTimeout = 100 * time.Millisecond
	// DefaultIdleTTL is the garbage-collection expiry of idle buckets
	DefaultIdleTTL = time.Hour
	// DefaultLockWait bounds how long a bucket check waits for its lock
	DefaultLockWait = 50 * time.Millisecond
	// DefaultLockTTL is the lifetime of a bucket lock
	DefaultLockTTL = time.Second

	lockPollInterval = 5 * time.Millisecond
)

type options struct {
	timeout         time.Duration
	idleTTL         time.Duration
	atomicIncrement bool
	lockEnabled     bool
	lockWait        time.Duration
	lockTTL         time.Duration
	now             func() time.Time
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// Option configures a controller
type Option func(*options)

func defaultOptions() options {
	return options{
		timeout:  DefaultStoreTimeout,
		idleTTL:  DefaultIdleTTL,
		lockWait: DefaultLockWait,
		lockTTL:  DefaultLockTTL,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithStoreTimeout bounds each store call. Non-positive values disable the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithIdleTTL sets the expiry of token buckets that are not observed
func WithIdleTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTTL = d
		}
	}
}

// WithAtomicIncrement makes the fixed-window controller increment and set the
// window expiry in one call when the store supports it.
func WithAtomicIncrement(enabled bool) Option {
	return func(o *options) { o.atomicIncrement = enabled }
}

// WithLock serializes token-bucket updates per identity with an advisory lock
// when the store supports it. Zero values keep the defaults.
func WithLock(wait, ttl time.Duration) Option {
	return func(o *options) {
		o.lockEnabled = true
		if wait > 0 {
			o.lockWait = wait
		}
		if ttl > 0 {
			o.lockTTL = ttl
		}
	}
}

// WithClock overrides the time source used for bucket refills
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records decisions in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
