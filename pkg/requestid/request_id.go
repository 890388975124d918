// Package requestid generates request IDs and carries them through handlers.
// IDs have the form <unix millis>-<8 hex chars>.
package requestid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Header carries the request ID in requests and responses
const Header = "X-Request-ID"

// maxIncomingLength bounds client-supplied IDs that are echoed back
const maxIncomingLength = 128

type contextKey struct{}

// counter is used as fallback when random generation fails
var counter atomic.Uint64

// GenerateRequestID generates a unique request ID, e.g. 1737039600123-a2b3c4d5
func GenerateRequestID() string {
	timestamp := time.Now().UnixMilli()

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Sprintf("%d-%d", timestamp, counter.Add(1))
	}

	return fmt.Sprintf("%d-%s", timestamp, hex.EncodeToString(randomBytes))
}

// Middleware reuses a well-formed incoming X-Request-ID or generates one,
// echoes it on the response and stores it in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !acceptable(id) {
			id = GenerateRequestID()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}

// NewContext returns ctx carrying id
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request ID in ctx, or ""
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

func acceptable(id string) bool {
	if id == "" || len(id) > maxIncomingLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
