package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"shortener/internal/clocktest"
	"shortener/internal/storage"
	"shortener/pkg/errors"
)

func newTestStore(t *testing.T) (*Store, *clocktest.Manual) {
	t.Helper()
	clk := clocktest.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := NewStore(&storage.Config{}, WithClock(clk.Now))
	t.Cleanup(func() { store.Close() })
	return store, clk
}

func TestNewStore(t *testing.T) {
	t.Run("with nil config", func(t *testing.T) {
		store := NewStore(nil)
		defer store.Close()

		if store == nil {
			t.Fatal("expected store to be created")
		}
		if store.config == nil {
			t.Fatal("expected default config to be used")
		}
	})

	t.Run("with custom config", func(t *testing.T) {
		config := &storage.Config{
			CleanupInterval: 1 * time.Minute,
			MaxEntries:      5000,
		}
		store := NewStore(config)
		defer store.Close()

		if store.config.CleanupInterval != config.CleanupInterval {
			t.Errorf("expected cleanup interval %v, got %v", config.CleanupInterval, store.config.CleanupInterval)
		}
		if store.config.MaxEntries != config.MaxEntries {
			t.Errorf("expected max entries %d, got %d", config.MaxEntries, store.config.MaxEntries)
		}
	})
}

func TestStore_Increment(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for i := int64(1); i <= 3; i++ {
		n, err := store.Increment(ctx, "counter")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != i {
			t.Errorf("Increment() = %d, want %d", n, i)
		}
	}

	ttl, err := store.TTL(ctx, "counter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl.State != storage.TTLPersistent {
		t.Errorf("expected counter without expiry, got %v", ttl.State)
	}
}

func TestStore_IncrementRejectsHash(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if err := store.HashSet(ctx, "bucket", map[string]string{"tokens": "1"}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Increment(ctx, "bucket"); err == nil {
		t.Fatal("expected error incrementing a hash")
	}
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestStore(t)

	if _, err := store.Increment(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := store.Expire(ctx, "k", 60*time.Second); err != nil {
		t.Fatal(err)
	}

	ttl, _ := store.TTL(ctx, "k")
	if ttl.State != storage.TTLExpiring || ttl.Remaining != 60*time.Second {
		t.Errorf("TTL() = %+v, want expiring 60s", ttl)
	}

	clk.Advance(59 * time.Second)
	if ok, _ := store.Exists(ctx, "k"); !ok {
		t.Fatal("expected key to exist before expiry")
	}

	clk.Advance(time.Second)
	if ok, _ := store.Exists(ctx, "k"); ok {
		t.Fatal("expected key to be expired")
	}

	ttl, _ = store.TTL(ctx, "k")
	if ttl.State != storage.TTLAbsent {
		t.Errorf("TTL() state = %v, want absent", ttl.State)
	}

	n, _ := store.Increment(ctx, "k")
	if n != 1 {
		t.Errorf("Increment() after expiry = %d, want 1", n)
	}
}

func TestStore_IncrementWithExpiry(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestStore(t)

	n, err := store.IncrementWithExpiry(ctx, "k", 10*time.Second)
	if err != nil || n != 1 {
		t.Fatalf("IncrementWithExpiry() = %d, %v", n, err)
	}

	clk.Advance(5 * time.Second)
	n, _ = store.IncrementWithExpiry(ctx, "k", 10*time.Second)
	if n != 2 {
		t.Errorf("IncrementWithExpiry() = %d, want 2", n)
	}

	// expiry is only set on creation
	ttl, _ := store.TTL(ctx, "k")
	if ttl.Remaining != 5*time.Second {
		t.Errorf("TTL remaining = %v, want 5s", ttl.Remaining)
	}
}

func TestStore_Hash(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestStore(t)

	got, err := store.HashGet(ctx, "bucket", "tokens", "last_refill")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no fields for absent key, got %v", got)
	}

	err = store.HashSet(ctx, "bucket", map[string]string{"tokens": "4.5", "last_refill": "100"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	got, _ = store.HashGet(ctx, "bucket", "tokens", "last_refill", "missing")
	if got["tokens"] != "4.5" || got["last_refill"] != "100" {
		t.Errorf("HashGet() = %v", got)
	}
	if _, ok := got["missing"]; ok {
		t.Error("absent field should be omitted")
	}

	clk.Advance(time.Hour)
	got, _ = store.HashGet(ctx, "bucket", "tokens")
	if len(got) != 0 {
		t.Errorf("expected hash to expire, got %v", got)
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestStore(t)

	if _, ok, _ := store.Get(ctx, "code"); ok {
		t.Fatal("expected absent key")
	}

	if err := store.Set(ctx, "code", "payload", 30*time.Second); err != nil {
		t.Fatal(err)
	}
	v, ok, err := store.Get(ctx, "code")
	if err != nil || !ok || v != "payload" {
		t.Fatalf("Get() = %q, %v, %v", v, ok, err)
	}

	if err := store.Set(ctx, "code", "updated", 0); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	if v, ok, _ := store.Get(ctx, "code"); !ok || v != "updated" {
		t.Errorf("Set with zero ttl should clear expiry, got %q %v", v, ok)
	}

	deleted, _ := store.Delete(ctx, "code")
	if !deleted {
		t.Error("expected Delete to report removal")
	}
	deleted, _ = store.Delete(ctx, "code")
	if deleted {
		t.Error("expected second Delete to report nothing removed")
	}
}

func TestStore_Lock(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestStore(t)

	first, ok, err := store.TryLock(ctx, "lock", time.Second)
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	if _, ok, _ := store.TryLock(ctx, "lock", time.Second); ok {
		t.Fatal("expected second TryLock to fail")
	}

	clk.Advance(time.Second)
	second, ok, _ := store.TryLock(ctx, "lock", time.Second)
	if !ok {
		t.Fatal("expected lock to be free after ttl")
	}
	if second == first {
		t.Fatal("expected a fresh token for the new holder")
	}

	// The first holder's lock expired; releasing it must not free the new one
	if err := store.Unlock(ctx, "lock", first); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.TryLock(ctx, "lock", time.Second); ok {
		t.Fatal("stale Unlock released another holder's lock")
	}

	if err := store.Unlock(ctx, "lock", second); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.TryLock(ctx, "lock", time.Second); !ok {
		t.Fatal("expected lock to be free after Unlock")
	}
}

func TestStore_CanceledContext(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Increment(ctx, "k")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected unavailable error, got %v", err)
	}
	if _, err := store.Exists(ctx, "k"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected unavailable error, got %v", err)
	}
}

func TestStore_Closed(t *testing.T) {
	store := NewStore(&storage.Config{})
	store.Close()
	store.Close() // idempotent

	if err := store.Ping(context.Background()); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected unavailable after close, got %v", err)
	}
}

func TestStore_MaxEntries(t *testing.T) {
	ctx := context.Background()
	clk := clocktest.NewManual(time.Now())
	store := NewStore(&storage.Config{MaxEntries: 3}, WithClock(clk.Now))
	defer store.Close()

	for i := 0; i < 5; i++ {
		clk.Advance(time.Millisecond)
		if err := store.Set(ctx, fmt.Sprintf("key%d", i), "v", 0); err != nil {
			t.Fatal(err)
		}
	}

	if store.Len() > 3 {
		t.Errorf("expected at most 3 entries, got %d", store.Len())
	}
	if ok, _ := store.Exists(ctx, "key0"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if ok, _ := store.Exists(ctx, "key4"); !ok {
		t.Error("expected newest entry to be kept")
	}
}

func TestStore_ConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Increment(ctx, "shared")
		}()
	}
	wg.Wait()

	v, _, _ := store.Get(ctx, "shared")
	if v != "50" {
		t.Errorf("expected 50 increments, got %s", v)
	}
}

func TestStore_RemoveExpired(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestStore(t)

	store.Set(ctx, "short", "v", time.Second)
	store.Set(ctx, "long", "v", time.Hour)
	clk.Advance(2 * time.Second)

	store.removeExpired()

	store.mu.Lock()
	_, hasShort := store.entries["short"]
	_, hasLong := store.entries["long"]
	store.mu.Unlock()

	if hasShort {
		t.Error("expected expired entry to be removed")
	}
	if !hasLong {
		t.Error("expected live entry to remain")
	}
}
