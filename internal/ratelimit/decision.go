package ratelimit

import "strconv"

// Algorithm names used in logs and metric labels
const (
	AlgorithmFixedWindow = "fixed_window"
	AlgorithmTokenBucket = "token_bucket"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is the suggested wait in seconds; zero when allowed.
	RetryAfter int
	// Remaining is the number of further requests (or whole tokens) left.
	Remaining int
	Limit     int
	// Degraded is set when the store could not be consulted and the request
	// was allowed without a real check.
	Degraded bool
}

// degraded is the fail-open decision.
func degraded(limit int) Decision {
	return Decision{Allowed: true, Limit: limit, Degraded: true}
}

// String renders the decision for debug logging
func (d Decision) String() string {
	switch {
	case d.Degraded:
		return "allowed (degraded)"
	case d.Allowed:
		return "allowed, remaining " + strconv.Itoa(d.Remaining)
	default:
		return "denied, retry after " + strconv.Itoa(d.RetryAfter) + "s"
	}
}
