package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"shortener/internal/storage"
	"shortener/pkg/errors"
)

// entry holds either a string value or a hash
type entry struct {
	value     string
	hash      map[string]string
	expiresAt time.Time // zero means no expiry
	touched   time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store implements storage.KeyValueStore in process memory.
//
// State is local to the process, so limits are not shared across replicas.
// Expiry is evaluated lazily against the store clock and swept periodically.
type Store struct {
	entries map[string]*entry
	mu      sync.Mutex
	config  *storage.Config
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new memory store
func NewStore(config *storage.Config, opts ...Option) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}

	s := &Store{
		entries: make(map[string]*entry),
		config:  config,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.CleanupInterval > 0 {
		go s.cleanup()
	}

	return s
}

var (
	_ storage.KeyValueStore     = (*Store)(nil)
	_ storage.AtomicIncrementer = (*Store)(nil)
	_ storage.Locker            = (*Store)(nil)
)

// lookup returns the live entry for key, dropping it if expired. Caller holds mu.
func (s *Store) lookup(key string, now time.Time) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(now) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// insert stores a new entry, evicting the least recently touched one when full. Caller holds mu.
func (s *Store) insert(key string, e *entry) {
	if _, exists := s.entries[key]; !exists && s.config.MaxEntries > 0 && len(s.entries) >= s.config.MaxEntries {
		s.evictOldest()
	}
	s.entries[key] = e
}

func (s *Store) checkOpen(op, key string) error {
	if s.closed {
		return storage.Unavailable(op, key, errors.New("memory store closed"))
	}
	return nil
}

// Increment atomically increments key
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	return s.increment(ctx, key, 0)
}

// IncrementWithExpiry increments key and sets ttl when the key is created
func (s *Store) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.increment(ctx, key, ttl)
}

func (s *Store) increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.Unavailable("incr", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("incr", key); err != nil {
		return 0, err
	}

	now := s.now()
	e := s.lookup(key, now)
	if e == nil {
		e = &entry{value: "1", touched: now}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
		s.insert(key, e)
		return 1, nil
	}
	if e.hash != nil {
		return 0, errors.NewError(errors.ErrorTypeBadRequest, "value is a hash").WithDetail("key", key)
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, errors.NewError(errors.ErrorTypeBadRequest, "value is not an integer").WithDetail("key", key).WithCause(err)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	e.touched = now
	return n, nil
}

// Expire sets the expiry of key
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return storage.Unavailable("expire", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("expire", key); err != nil {
		return err
	}

	now := s.now()
	if e := s.lookup(key, now); e != nil {
		if ttl <= 0 {
			delete(s.entries, key)
			return nil
		}
		e.expiresAt = now.Add(ttl)
	}
	return nil
}

// TTL reports the expiry state of key
func (s *Store) TTL(ctx context.Context, key string) (storage.TTL, error) {
	if err := ctx.Err(); err != nil {
		return storage.TTL{}, storage.Unavailable("ttl", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("ttl", key); err != nil {
		return storage.TTL{}, err
	}

	now := s.now()
	e := s.lookup(key, now)
	switch {
	case e == nil:
		return storage.TTL{State: storage.TTLAbsent}, nil
	case e.expiresAt.IsZero():
		return storage.TTL{State: storage.TTLPersistent}, nil
	default:
		return storage.TTL{State: storage.TTLExpiring, Remaining: e.expiresAt.Sub(now)}, nil
	}
}

// HashGet reads hash fields
func (s *Store) HashGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Unavailable("hmget", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("hmget", key); err != nil {
		return nil, err
	}

	result := make(map[string]string, len(fields))
	e := s.lookup(key, s.now())
	if e == nil || e.hash == nil {
		return result, nil
	}
	for _, f := range fields {
		if v, ok := e.hash[f]; ok {
			result[f] = v
		}
	}
	return result, nil
}

// HashSet writes hash fields and the key expiry
func (s *Store) HashSet(ctx context.Context, key string, values map[string]string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return storage.Unavailable("hset", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("hset", key); err != nil {
		return err
	}

	now := s.now()
	e := s.lookup(key, now)
	if e == nil {
		e = &entry{hash: make(map[string]string, len(values))}
		s.insert(key, e)
	} else if e.hash == nil {
		return errors.NewError(errors.ErrorTypeBadRequest, "value is not a hash").WithDetail("key", key)
	}
	for k, v := range values {
		e.hash[k] = v
	}
	e.touched = now
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return nil
}

// Exists reports whether key is present
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storage.Unavailable("exists", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("exists", key); err != nil {
		return false, err
	}
	return s.lookup(key, s.now()) != nil, nil
}

// Get reads a string value
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, storage.Unavailable("get", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("get", key); err != nil {
		return "", false, err
	}

	e := s.lookup(key, s.now())
	if e == nil || e.hash != nil {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set writes a string value, replacing any previous value and expiry
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return storage.Unavailable("set", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("set", key); err != nil {
		return err
	}

	now := s.now()
	e := &entry{value: value, touched: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.insert(key, e)
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storage.Unavailable("del", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("del", key); err != nil {
		return false, err
	}

	if s.lookup(key, s.now()) == nil {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// TryLock acquires key for ttl if nobody holds it
func (s *Store) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, storage.Unavailable("setnx", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("setnx", key); err != nil {
		return "", false, err
	}

	now := s.now()
	if s.lookup(key, now) != nil {
		return "", false, nil
	}
	token := uuid.NewString()
	e := &entry{value: token, touched: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.insert(key, e)
	return token, true, nil
}

// Unlock releases key if token still holds it
func (s *Store) Unlock(ctx context.Context, key, token string) error {
	if err := ctx.Err(); err != nil {
		return storage.Unavailable("unlock", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("unlock", key); err != nil {
		return err
	}

	if e := s.lookup(key, s.now()); e != nil && e.value == token {
		delete(s.entries, key)
	}
	return nil
}

// Ping reports whether the store is open
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkOpen("ping", "")
}

// Len returns the number of live entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// cleanup periodically removes expired entries
func (s *Store) cleanup() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

// removeExpired removes entries whose expiry has passed
func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}

// evictOldest removes the least recently touched entry. Caller holds mu.
func (s *Store) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, e := range s.entries {
		if first || e.touched.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.touched
			first = false
		}
	}

	if !first {
		delete(s.entries, oldestKey)
	}
}
