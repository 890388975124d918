// Package storage defines the key-value capability surface shared by the
// admission controllers, the code allocator and the URL record service.
package storage

import (
	"context"
	"time"

	"shortener/pkg/errors"
)

// ErrUnavailable matches (via errors.Is) any store failure: transport errors,
// timeouts and canceled contexts.
var ErrUnavailable = errors.NewError(errors.ErrorTypeUnavailable, "store unavailable")

// TTLState describes the expiry state of a key.
type TTLState int

const (
	// TTLAbsent means the key does not exist.
	TTLAbsent TTLState = iota
	// TTLPersistent means the key exists without an expiry.
	TTLPersistent
	// TTLExpiring means the key exists and will expire after Remaining.
	TTLExpiring
)

func (s TTLState) String() string {
	switch s {
	case TTLAbsent:
		return "absent"
	case TTLPersistent:
		return "no-expiry"
	case TTLExpiring:
		return "expiring"
	default:
		return "unknown"
	}
}

// TTL is the result of a time-to-live query.
type TTL struct {
	State     TTLState
	Remaining time.Duration
}

// KeyValueStore is an atomic key-value service. Single-key operations are
// atomic; nothing spans more than one key.
type KeyValueStore interface {
	// Increment atomically increments key, creating it at 1 when absent.
	Increment(ctx context.Context, key string) (int64, error)
	// Expire sets the expiry of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL reports the expiry state of key.
	TTL(ctx context.Context, key string) (TTL, error)
	// HashGet reads hash fields. Absent fields are omitted from the result.
	HashGet(ctx context.Context, key string, fields ...string) (map[string]string, error)
	// HashSet writes hash fields and, when ttl > 0, the key expiry.
	HashSet(ctx context.Context, key string, values map[string]string, ttl time.Duration) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes a string value. A zero ttl leaves the key without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// AtomicIncrementer is implemented by stores able to increment a counter and
// set its expiry on creation in a single atomic call.
type AtomicIncrementer interface {
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Locker is implemented by stores offering short-lived advisory locks.
type Locker interface {
	// TryLock acquires key for ttl, returning false if it is already held.
	// The returned token identifies this holder to Unlock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock releases key only while it is still held under token. A lock
	// that expired and was taken by another holder is left alone.
	Unlock(ctx context.Context, key, token string) error
}

// Config holds settings common to store implementations
type Config struct {
	// Prefix is prepended to every key
	Prefix string
	// CleanupInterval is how often in-process stores purge expired entries
	CleanupInterval time.Duration
	// MaxEntries is the maximum number of entries to keep (0 = unlimited)
	MaxEntries int
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Prefix:          "shortener:",
		CleanupInterval: 5 * time.Minute,
		MaxEntries:      100000,
	}
}

// Unavailable wraps cause as a store failure for operation op.
func Unavailable(op, key string, cause error) error {
	return errors.NewError(errors.ErrorTypeUnavailable, "store unavailable").
		WithDetail("op", op).
		WithDetail("key", key).
		WithCause(cause)
}

// WithTimeout bounds a single store call. A non-positive timeout leaves ctx as is.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
