package ratelimit

import (
	"context"
	"testing"
	"time"

	"shortener/internal/clocktest"
	"shortener/internal/storage"
	"shortener/internal/storage/memory"
	"shortener/pkg/errors"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestStore returns a memory store whose expiry follows a manual clock.
func newTestStore(t *testing.T) (*memory.Store, *clocktest.Manual) {
	t.Helper()
	clk := clocktest.NewManual(testEpoch)
	store := memory.NewStore(&storage.Config{}, memory.WithClock(clk.Now))
	t.Cleanup(func() { store.Close() })
	return store, clk
}

// failingStore fails every call as an unreachable store would
type failingStore struct {
	calls int
}

func (f *failingStore) fail(op, key string) error {
	f.calls++
	return storage.Unavailable(op, key, errors.New("connection refused"))
}

func (f *failingStore) Increment(ctx context.Context, key string) (int64, error) {
	return 0, f.fail("incr", key)
}

func (f *failingStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return f.fail("expire", key)
}

func (f *failingStore) TTL(ctx context.Context, key string) (storage.TTL, error) {
	return storage.TTL{}, f.fail("ttl", key)
}

func (f *failingStore) HashGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	return nil, f.fail("hmget", key)
}

func (f *failingStore) HashSet(ctx context.Context, key string, values map[string]string, ttl time.Duration) error {
	return f.fail("hset", key)
}

func (f *failingStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, f.fail("exists", key)
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, f.fail("get", key)
}

func (f *failingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return f.fail("set", key)
}

func (f *failingStore) Delete(ctx context.Context, key string) (bool, error) {
	return false, f.fail("del", key)
}

func (f *failingStore) Ping(ctx context.Context) error { return f.fail("ping", "") }
func (f *failingStore) Close() error                   { return nil }

// plainStore hides the optional capabilities of the wrapped store
type plainStore struct {
	storage.KeyValueStore
}
