package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"shortener/internal/storage"
	"shortener/pkg/metrics"
)

const (
	fieldTokens     = "tokens"
	fieldLastRefill = "last_refill"
)

// TokenBucket admits requests while the identity's bucket holds enough
// tokens. Buckets refill lazily: the token count is brought forward only when
// the bucket is observed.
//
// The read-modify-write sequence is not atomic. Concurrent callers on the same
// identity may both admit from the same state, over-admitting by at most one
// cost each. WithLock narrows this with a per-identity advisory lock.
type TokenBucket struct {
	store   storage.KeyValueStore
	locker  storage.Locker
	timeout time.Duration
	idleTTL time.Duration
	wait    time.Duration
	lockTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTokenBucket creates a token-bucket controller over store
func NewTokenBucket(store storage.KeyValueStore, opts ...Option) *TokenBucket {
	o := buildOptions(opts)

	tb := &TokenBucket{
		store:   store,
		timeout: o.timeout,
		idleTTL: o.idleTTL,
		wait:    o.lockWait,
		lockTTL: o.lockTTL,
		now:     o.now,
		logger:  o.logger.With("component", "ratelimit", "algorithm", AlgorithmTokenBucket),
		metrics: o.metrics,
	}
	if o.lockEnabled {
		if l, ok := store.(storage.Locker); ok {
			tb.locker = l
		} else {
			tb.logger.Warn("store does not support locking, bucket updates are unserialized")
		}
	}
	return tb
}

// Admit refills the identity's bucket for the time elapsed since it was last
// observed, then consumes the rule's cost if enough tokens are available.
// The refill timestamp advances on denial too, so the elapsed time is never
// counted twice.
//
// Store failures fail open: the returned decision allows the request and is
// marked Degraded, and the error is returned for inspection. An invalid rule
// fails open the same way with a configuration error.
func (b *TokenBucket) Admit(ctx context.Context, identity string, rule TokenBucketRule) (Decision, error) {
	if err := rule.Validate(); err != nil {
		b.logger.Error("invalid rate limit rule, allowing request",
			"identity", identity,
			"rule", rule.Endpoint,
			"error", err,
		)
		b.metrics.RecordDecision(rule.Endpoint, AlgorithmTokenBucket, metrics.DecisionDegraded)
		return degraded(int(rule.Capacity)), err
	}

	limit := int(rule.Capacity)
	key := tokenBucketKey(identity)
	if b.locker != nil {
		unlock := b.lock(ctx, key)
		defer unlock()
	}

	capacity := rule.Capacity
	cost := rule.EffectiveCost()
	now := toSeconds(b.now())

	state, err := b.read(ctx, key)
	if err != nil {
		return b.failOpen(identity, rule, err), err
	}

	tokens, lastRefill := capacity, now
	if v, ok := parseField(state, fieldTokens); ok {
		tokens = math.Max(0, v)
	}
	if v, ok := parseField(state, fieldLastRefill); ok {
		lastRefill = v
	}

	elapsed := math.Max(0, now-lastRefill)
	tokens = math.Min(capacity, tokens+elapsed*rule.RefillRate)

	allowed := tokens >= cost
	if allowed {
		tokens -= cost
	}

	if err := b.write(ctx, key, tokens, now); err != nil {
		return b.failOpen(identity, rule, err), err
	}

	if allowed {
		b.metrics.RecordDecision(rule.Endpoint, AlgorithmTokenBucket, metrics.DecisionAllowed)
		return Decision{
			Allowed:   true,
			Remaining: int(math.Floor(tokens)),
			Limit:     limit,
		}, nil
	}

	b.metrics.RecordDecision(rule.Endpoint, AlgorithmTokenBucket, metrics.DecisionDenied)
	return Decision{
		RetryAfter: retryAfter(cost-tokens, rule.RefillRate),
		Remaining:  0,
		Limit:      limit,
	}, nil
}

func (b *TokenBucket) read(ctx context.Context, key string) (map[string]string, error) {
	cctx, cancel := storage.WithTimeout(ctx, b.timeout)
	defer cancel()
	start := time.Now()
	defer b.metrics.ObserveStore("hmget", start)
	return b.store.HashGet(cctx, key, fieldTokens, fieldLastRefill)
}

func (b *TokenBucket) write(ctx context.Context, key string, tokens, at float64) error {
	cctx, cancel := storage.WithTimeout(ctx, b.timeout)
	defer cancel()
	start := time.Now()
	defer b.metrics.ObserveStore("hset", start)
	return b.store.HashSet(cctx, key, map[string]string{
		fieldTokens:     formatFloat(tokens),
		fieldLastRefill: formatFloat(at),
	}, b.idleTTL)
}

func (b *TokenBucket) failOpen(identity string, rule TokenBucketRule, err error) Decision {
	b.logger.Warn("rate limiter degraded",
		"identity", identity,
		"rule", rule.Endpoint,
		"error", err,
	)
	b.metrics.RecordDecision(rule.Endpoint, AlgorithmTokenBucket, metrics.DecisionDegraded)
	return degraded(int(rule.Capacity))
}

// lock waits up to b.wait for the identity's advisory lock. When the lock
// cannot be taken in time the check proceeds unserialized.
func (b *TokenBucket) lock(ctx context.Context, key string) func() {
	lockKey := key + lockSuffix
	deadline := time.Now().Add(b.wait)

	for {
		cctx, cancel := storage.WithTimeout(ctx, b.timeout)
		token, ok, err := b.locker.TryLock(cctx, lockKey, b.lockTTL)
		cancel()
		if err != nil {
			b.logger.Debug("bucket lock unavailable", "key", lockKey, "error", err)
			return func() {}
		}
		if ok {
			return func() {
				uctx, cancel := storage.WithTimeout(context.WithoutCancel(ctx), b.timeout)
				defer cancel()
				if err := b.locker.Unlock(uctx, lockKey, token); err != nil {
					b.logger.Debug("failed to release bucket lock", "key", lockKey, "error", err)
				}
			}
		}
		if !time.Now().Before(deadline) {
			b.logger.Debug("bucket lock wait exceeded, proceeding unlocked", "key", lockKey)
			return func() {}
		}

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return func() {}
		case <-timer.C:
		}
	}
}

// retryAfter is the whole number of seconds until deficit tokens accrue.
func retryAfter(deficit, rate float64) int {
	secs := int(math.Ceil(deficit / rate))
	if secs < 1 {
		return 1
	}
	return secs
}

func parseField(state map[string]string, field string) (float64, bool) {
	raw, ok := state[field]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
