package ratelimit

import (
	"fmt"
	"time"

	"shortener/pkg/errors"
	"shortener/pkg/routing"
)

// FixedWindowRule limits an endpoint to Limit requests per window.
type FixedWindowRule struct {
	Endpoint      string `yaml:"endpoint"`
	WindowSeconds int    `yaml:"windowSeconds"`
	Limit         int    `yaml:"limit"`
}

// Window returns the window length
func (r FixedWindowRule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Validate rejects rules that can never be applied correctly.
func (r FixedWindowRule) Validate() error {
	switch {
	case r.Endpoint == "":
		return configError("fixed window rule endpoint is required", r.Endpoint)
	case r.WindowSeconds <= 0:
		return configError("fixed window length must be positive", r.Endpoint).
			WithDetail("windowSeconds", r.WindowSeconds)
	case r.Limit <= 0:
		return configError("fixed window limit must be positive", r.Endpoint).
			WithDetail("limit", r.Limit)
	}
	return nil
}

// TokenBucketRule limits an endpoint with a bucket of Capacity tokens refilled
// at RefillRate tokens per second. Each request consumes Cost tokens (1 when
// unset).
type TokenBucketRule struct {
	Endpoint   string  `yaml:"endpoint"`
	Capacity   float64 `yaml:"capacity"`
	RefillRate float64 `yaml:"refillRate"`
	Cost       float64 `yaml:"cost"`
}

// EffectiveCost returns the per-request cost
func (r TokenBucketRule) EffectiveCost() float64 {
	if r.Cost == 0 {
		return 1
	}
	return r.Cost
}

// Validate rejects rules that can never be applied correctly. A cost above
// capacity would make the endpoint permanently unreachable.
func (r TokenBucketRule) Validate() error {
	switch {
	case r.Endpoint == "":
		return configError("token bucket rule endpoint is required", r.Endpoint)
	case r.Capacity <= 0:
		return configError("token bucket capacity must be positive", r.Endpoint).
			WithDetail("capacity", r.Capacity)
	case r.RefillRate <= 0:
		return configError("token bucket refill rate must be positive", r.Endpoint).
			WithDetail("refillRate", r.RefillRate)
	case r.Cost < 0:
		return configError("token bucket cost must not be negative", r.Endpoint).
			WithDetail("cost", r.Cost)
	case r.EffectiveCost() > r.Capacity:
		return configError("token bucket cost exceeds capacity", r.Endpoint).
			WithDetail("cost", r.EffectiveCost()).
			WithDetail("capacity", r.Capacity)
	}
	return nil
}

func configError(msg, endpoint string) *errors.Error {
	return errors.NewError(errors.ErrorTypeConfiguration, msg).WithDetail("endpoint", endpoint)
}

// RuleSet is a validated, immutable set of admission rules keyed by endpoint
// pattern. Endpoints are stored in router syntax ({param}).
type RuleSet struct {
	fixedWindow []FixedWindowRule
	tokenBucket []TokenBucketRule
}

// NewRuleSet validates the rules and returns a rule set. Any invalid rule
// yields a configuration error.
func NewRuleSet(fixedWindow []FixedWindowRule, tokenBucket []TokenBucketRule) (*RuleSet, error) {
	rs := &RuleSet{
		fixedWindow: make([]FixedWindowRule, 0, len(fixedWindow)),
		tokenBucket: make([]TokenBucketRule, 0, len(tokenBucket)),
	}

	seen := make(map[string]bool)
	for i, rule := range fixedWindow {
		if err := rule.Validate(); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("fixedWindow[%d]", i))
		}
		rule.Endpoint = routing.ConvertPattern(rule.Endpoint)
		if seen[rule.Endpoint] {
			return nil, configError("duplicate fixed window rule", rule.Endpoint)
		}
		seen[rule.Endpoint] = true
		rs.fixedWindow = append(rs.fixedWindow, rule)
	}

	seen = make(map[string]bool)
	for i, rule := range tokenBucket {
		if err := rule.Validate(); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("tokenBucket[%d]", i))
		}
		rule.Endpoint = routing.ConvertPattern(rule.Endpoint)
		if seen[rule.Endpoint] {
			return nil, configError("duplicate token bucket rule", rule.Endpoint)
		}
		seen[rule.Endpoint] = true
		rs.tokenBucket = append(rs.tokenBucket, rule)
	}

	return rs, nil
}

// FixedWindowFor returns the fixed-window rule for a request. An exact match
// on the router pattern wins; otherwise the first rule whose endpoint is a
// prefix of path applies.
func (s *RuleSet) FixedWindowFor(pattern, path string) (FixedWindowRule, bool) {
	if s == nil {
		return FixedWindowRule{}, false
	}
	for _, rule := range s.fixedWindow {
		if pattern != "" && rule.Endpoint == pattern {
			return rule, true
		}
	}
	for _, rule := range s.fixedWindow {
		if routing.MatchPrefix(path, rule.Endpoint) {
			return rule, true
		}
	}
	return FixedWindowRule{}, false
}

// TokenBucketFor returns the token-bucket rule for a request, matched the
// same way as FixedWindowFor.
func (s *RuleSet) TokenBucketFor(pattern, path string) (TokenBucketRule, bool) {
	if s == nil {
		return TokenBucketRule{}, false
	}
	for _, rule := range s.tokenBucket {
		if pattern != "" && rule.Endpoint == pattern {
			return rule, true
		}
	}
	for _, rule := range s.tokenBucket {
		if routing.MatchPrefix(path, rule.Endpoint) {
			return rule, true
		}
	}
	return TokenBucketRule{}, false
}

// Len returns the total number of rules
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fixedWindow) + len(s.tokenBucket)
}
