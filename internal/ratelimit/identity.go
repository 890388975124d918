package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

const (
	fixedWindowKeyPrefix = "ratelimit:fw:"
	tokenBucketKeyPrefix = "ratelimit:tb:"
	lockSuffix           = ":lock"
)

// Identity builds the rate-limit identity for an endpoint pattern and a
// caller network identity.
func Identity(endpoint, caller string) string {
	return endpoint + ":" + caller
}

func fixedWindowKey(identity string) string {
	return fixedWindowKeyPrefix + identity
}

func tokenBucketKey(identity string) string {
	return tokenBucketKeyPrefix + identity
}

// ClientIP extracts the caller network identity from r.RemoteAddr. Proxy
// headers are honoured only when a RealIP-style middleware has already
// rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
