package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"shortener/internal/storage"
	"shortener/pkg/metrics"
)

// FixedWindow admits up to Limit requests per identity per window. All state
// lives in the store; the controller itself holds none.
type FixedWindow struct {
	store   storage.KeyValueStore
	atomic  storage.AtomicIncrementer
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFixedWindow creates a fixed-window controller over store
func NewFixedWindow(store storage.KeyValueStore, opts ...Option) *FixedWindow {
	o := buildOptions(opts)

	fw := &FixedWindow{
		store:   store,
		timeout: o.timeout,
		logger:  o.logger.With("component", "ratelimit", "algorithm", AlgorithmFixedWindow),
		metrics: o.metrics,
	}
	if o.atomicIncrement {
		if ai, ok := store.(storage.AtomicIncrementer); ok {
			fw.atomic = ai
		} else {
			fw.logger.Warn("store does not support atomic increment, using increment and expire")
		}
	}
	return fw
}

// Admit counts a request against identity and decides whether it may proceed.
//
// The counter is incremented before the limit is checked, so the increment
// itself is the admission decision. Only the caller that created the counter
// sets its expiry; every later caller checks that an expiry exists and sets it
// if not, which repairs counters left behind by a caller that failed between
// the two calls.
//
// Store failures fail open: the returned decision allows the request and is
// marked Degraded, and the error is returned for inspection. A rule without
// a positive window fails open the same way with a configuration error;
// NewRuleSet never yields one. A non-positive limit denies every request.
func (f *FixedWindow) Admit(ctx context.Context, identity string, rule FixedWindowRule) (Decision, error) {
	if rule.WindowSeconds <= 0 {
		err := rule.Validate()
		f.logger.Error("invalid rate limit rule, allowing request",
			"identity", identity,
			"rule", rule.Endpoint,
			"error", err,
		)
		f.metrics.RecordDecision(rule.Endpoint, AlgorithmFixedWindow, metrics.DecisionDegraded)
		return degraded(rule.Limit), err
	}
	if rule.Limit <= 0 {
		d := Decision{Limit: rule.Limit, RetryAfter: rule.WindowSeconds}
		f.metrics.RecordDecision(rule.Endpoint, AlgorithmFixedWindow, metrics.DecisionDenied)
		return d, nil
	}

	key := fixedWindowKey(identity)
	window := rule.Window()

	n, err := f.increment(ctx, key, window)
	if err != nil {
		f.logger.Warn("rate limiter degraded",
			"identity", identity,
			"rule", rule.Endpoint,
			"error", err,
		)
		f.metrics.RecordDecision(rule.Endpoint, AlgorithmFixedWindow, metrics.DecisionDegraded)
		return degraded(rule.Limit), err
	}

	if int64(rule.Limit) < n {
		f.metrics.RecordDecision(rule.Endpoint, AlgorithmFixedWindow, metrics.DecisionDenied)
		return Decision{
			RetryAfter: rule.WindowSeconds,
			Limit:      rule.Limit,
		}, nil
	}

	f.metrics.RecordDecision(rule.Endpoint, AlgorithmFixedWindow, metrics.DecisionAllowed)
	return Decision{
		Allowed:   true,
		Remaining: rule.Limit - int(n),
		Limit:     rule.Limit,
	}, nil
}

// increment returns the post-increment count and makes sure the counter
// carries an expiry. Failing to set the expiry does not fail the check; the
// next caller repairs it.
func (f *FixedWindow) increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if f.atomic != nil {
		cctx, cancel := storage.WithTimeout(ctx, f.timeout)
		defer cancel()
		start := time.Now()
		n, err := f.atomic.IncrementWithExpiry(cctx, key, window)
		f.metrics.ObserveStore("incr_expire", start)
		return n, err
	}

	cctx, cancel := storage.WithTimeout(ctx, f.timeout)
	start := time.Now()
	n, err := f.store.Increment(cctx, key)
	f.metrics.ObserveStore("incr", start)
	cancel()
	if err != nil {
		return 0, err
	}

	if n == 1 {
		f.expire(ctx, key, window)
		return n, nil
	}

	cctx, cancel = storage.WithTimeout(ctx, f.timeout)
	start = time.Now()
	ttl, err := f.store.TTL(cctx, key)
	f.metrics.ObserveStore("ttl", start)
	cancel()
	if err != nil {
		f.logger.Warn("failed to read window expiry", "key", key, "error", err)
		return n, nil
	}
	if ttl.State == storage.TTLPersistent {
		f.logger.Info("repairing window counter without expiry", "key", key, "count", n)
		f.expire(ctx, key, window)
	}
	return n, nil
}

func (f *FixedWindow) expire(ctx context.Context, key string, window time.Duration) {
	cctx, cancel := storage.WithTimeout(ctx, f.timeout)
	defer cancel()
	start := time.Now()
	err := f.store.Expire(cctx, key, window)
	f.metrics.ObserveStore("expire", start)
	if err != nil {
		f.logger.Warn("failed to set window expiry", "key", key, "error", err)
	}
}
