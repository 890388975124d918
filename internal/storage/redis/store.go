package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shortener/internal/storage"
	"shortener/pkg/errors"
)

// Client defines the interface for Redis operations
type Client interface {
	Incr(ctx context.Context, key string) (int64, error)
	// IncrWithExpiry increments and sets ttl on creation in one atomic call
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL follows Redis PTTL semantics: -1 no expiry, -2 absent
	TTL(ctx context.Context, key string) (time.Duration, error)
	HMGet(ctx context.Context, key string, fields ...string) ([]interface{}, error)
	HSetWithExpiry(ctx context.Context, key string, values map[string]string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	// DelIfEqual deletes key only while it holds value
	DelIfEqual(ctx context.Context, key, value string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Redis reports these sentinel values from PTTL.
const (
	ttlNoExpiry = -1
	ttlAbsent   = -2
)

// Store implements storage.KeyValueStore using Redis
type Store struct {
	client Client
	config *storage.Config
}

var (
	_ storage.KeyValueStore     = (*Store)(nil)
	_ storage.AtomicIncrementer = (*Store)(nil)
	_ storage.Locker            = (*Store)(nil)
)

// NewStore creates a new Redis store
func NewStore(client Client, config *storage.Config) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}

	return &Store{
		client: client,
		config: config,
	}
}

func (s *Store) key(key string) string {
	return s.config.Prefix + key
}

// Increment atomically increments key
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, s.key(key))
	if err != nil {
		return 0, storage.Unavailable("incr", key, err)
	}
	return n, nil
}

// IncrementWithExpiry increments key and sets ttl when the key is created
func (s *Store) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.IncrWithExpiry(ctx, s.key(key), ttl)
	if err != nil {
		return 0, storage.Unavailable("incr_expire", key, err)
	}
	return n, nil
}

// Expire sets the expiry of key
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(key), ttl); err != nil {
		return storage.Unavailable("expire", key, err)
	}
	return nil
}

// TTL reports the expiry state of key
func (s *Store) TTL(ctx context.Context, key string) (storage.TTL, error) {
	d, err := s.client.TTL(ctx, s.key(key))
	if err != nil {
		return storage.TTL{}, storage.Unavailable("ttl", key, err)
	}

	switch {
	case d == ttlAbsent:
		return storage.TTL{State: storage.TTLAbsent}, nil
	case d == ttlNoExpiry:
		return storage.TTL{State: storage.TTLPersistent}, nil
	case d < 0:
		return storage.TTL{}, errors.NewError(errors.ErrorTypeInternal, "unexpected ttl reply").
			WithDetail("key", key).
			WithDetail("ttl", int64(d))
	default:
		return storage.TTL{State: storage.TTLExpiring, Remaining: d}, nil
	}
}

// HashGet reads hash fields. Absent fields are omitted.
func (s *Store) HashGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	values, err := s.client.HMGet(ctx, s.key(key), fields...)
	if err != nil {
		return nil, storage.Unavailable("hmget", key, err)
	}
	if len(values) != len(fields) {
		return nil, errors.NewError(errors.ErrorTypeInternal, "invalid hmget reply length").
			WithDetail("key", key).
			WithDetail("want", len(fields)).
			WithDetail("got", len(values))
	}

	result := make(map[string]string, len(fields))
	for i, v := range values {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			result[fields[i]] = val
		case []byte:
			result[fields[i]] = string(val)
		default:
			return nil, errors.NewError(errors.ErrorTypeInternal, "invalid hmget reply type").
				WithDetail("key", key).
				WithDetail("field", fields[i])
		}
	}
	return result, nil
}

// HashSet writes hash fields and the key expiry atomically
func (s *Store) HashSet(ctx context.Context, key string, values map[string]string, ttl time.Duration) error {
	if err := s.client.HSetWithExpiry(ctx, s.key(key), values, ttl); err != nil {
		return storage.Unavailable("hset", key, err)
	}
	return nil
}

// Exists reports whether key is present
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Exists(ctx, s.key(key))
	if err != nil {
		return false, storage.Unavailable("exists", key, err)
	}
	return ok, nil
}

// Get reads a string value
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.client.Get(ctx, s.key(key))
	if err != nil {
		return "", false, storage.Unavailable("get", key, err)
	}
	return v, ok, nil
}

// Set writes a string value
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl); err != nil {
		return storage.Unavailable("set", key, err)
	}
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(key))
	if err != nil {
		return false, storage.Unavailable("del", key, err)
	}
	return n > 0, nil
}

// TryLock acquires an advisory lock with SET NX PX, storing a random token
func (s *Store) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.key(key), token, ttl)
	if err != nil {
		return "", false, storage.Unavailable("setnx", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases an advisory lock if token still holds it
func (s *Store) Unlock(ctx context.Context, key, token string) error {
	if _, err := s.client.DelIfEqual(ctx, s.key(key), token); err != nil {
		return storage.Unavailable("unlock", key, err)
	}
	return nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return storage.Unavailable("ping", "", err)
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
