// Package shortcode allocates short, collision-checked identifiers over a
// 62-character alphabet.
package shortcode

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shortener/internal/storage"
	"shortener/internal/telemetry"
	"shortener/pkg/errors"
	"shortener/pkg/metrics"
)

// Alphabet is the candidate character set
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	DefaultLength     = 6
	DefaultMaxRetries = 5
	// escalateAfter is the number of failed attempts after which candidates
	// grow by one character for the rest of the call
	escalateAfter     = 2
	// FallbackGrowth is how much longer the unchecked fallback code is than
	// the configured length
	FallbackGrowth    = 2

	// URLKeyPrefix namespaces URL records in the store
	URLKeyPrefix = "url:"
)

// Allocation outcome label values
const (
	OutcomeAllocated = "allocated"
	OutcomeFallback  = "fallback"
	OutcomeFailed    = "failed"
)

// ErrAllocation matches (via errors.Is) allocation failures only. The store
// error that caused one stays reachable as its cause.
var ErrAllocation = errors.NewError(errors.ErrorTypeUnavailable, "failed to generate unique code")

// Exister is the part of the store the allocator needs
type Exister interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// KeyFunc maps a candidate code to the store key checked for collisions
type KeyFunc func(code string) string

// URLKey is the default KeyFunc
func URLKey(code string) string {
	return URLKeyPrefix + code
}

// Allocator generates codes that do not collide with existing store keys.
//
// Candidates are drawn at the configured length. After escalateAfter
// collisions they are one character longer. When every attempt collides the
// allocator returns a code two characters longer without checking it; at
// that length a collision is astronomically unlikely but not impossible.
type Allocator struct {
	store      Exister
	source     Source
	keyFunc    KeyFunc
	length     int
	maxRetries int
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures an Allocator
type Option func(*Allocator)

// WithSource sets the randomness source
func WithSource(src Source) Option {
	return func(a *Allocator) {
		if src != nil {
			a.source = src
		}
	}
}

// WithLength sets the initial candidate length
func WithLength(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.length = n
		}
	}
}

// WithMaxRetries sets the number of checked attempts
func WithMaxRetries(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxRetries = n
		}
	}
}

// WithKeyFunc sets the mapping from code to store key
func WithKeyFunc(fn KeyFunc) Option {
	return func(a *Allocator) {
		if fn != nil {
			a.keyFunc = fn
		}
	}
}

// WithStoreTimeout bounds each existence check
func WithStoreTimeout(d time.Duration) Option {
	return func(a *Allocator) { a.timeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records allocations in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) { a.metrics = m }
}

// New creates an allocator checking candidates against store
func New(store Exister, opts ...Option) *Allocator {
	a := &Allocator{
		store:      store,
		source:     CryptoSource{},
		keyFunc:    URLKey,
		length:     DefaultLength,
		maxRetries: DefaultMaxRetries,
		timeout:    100 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "shortcode")
	return a
}

// Allocate returns a code that was free at the time it was checked. A store
// failure aborts the call with an error matching ErrAllocation.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	length := a.length

	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		code := a.Generate(length)

		exists, err := a.exists(ctx, code)
		if err != nil {
			a.logger.Error("Error checking code uniqueness", "attempt", attempt, "error", err)
			telemetry.RecordError(ctx, err)
			a.record(OutcomeFailed)
			return "", errors.NewError(errors.ErrorTypeUnavailable, ErrAllocation.Message).WithCause(err)
		}
		if !exists {
			telemetry.SetAttributes(ctx,
				attribute.Int("shortcode.attempts", attempt),
				attribute.Int("shortcode.length", length),
			)
			a.record(OutcomeAllocated)
			return code, nil
		}

		telemetry.AddEvent(ctx, "shortcode.collision", attribute.Int("length", length))

		if a.metrics != nil {
			a.metrics.ShortcodeCollisions.WithLabelValues(strconv.Itoa(length)).Inc()
		}
		if attempt == escalateAfter {
			length = a.length + 1
		}
	}

	code := a.Generate(a.length + FallbackGrowth)
	a.logger.Warn("Code space exhausted, returning unchecked code",
		"attempts", a.maxRetries,
		"length", len(code),
	)
	telemetry.AddEvent(ctx, "shortcode.fallback", attribute.Int("length", len(code)))
	a.record(OutcomeFallback)
	return code, nil
}

func (a *Allocator) exists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := storage.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	defer a.metrics.ObserveStore("exists", start)

	return a.store.Exists(ctx, a.keyFunc(code))
}

func (a *Allocator) record(outcome string) {
	if a.metrics != nil {
		a.metrics.ShortcodeAllocations.WithLabelValues(outcome).Inc()
	}
}

// Generate draws a candidate of the given length. It does not consult the store.
func (a *Allocator) Generate(length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(Alphabet[a.source.IntN(len(Alphabet))])
	}
	return b.String()
}

// IsValid reports whether code could have been produced by this allocator
func (a *Allocator) IsValid(code string) bool {
	return validCode(code, a.length, a.length+FallbackGrowth)
}
