package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is implemented by the key-value store
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck pings the key-value store, bounded by timeout
func StoreCheck(store Pinger, timeout time.Duration) Check {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	}
}
