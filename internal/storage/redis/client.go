package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiryScript increments KEYS[1] and sets its expiry only when the
// increment created the key.
var incrWithExpiryScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// compareAndDeleteScript deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// ClientAdapter adapts go-redis client to our interface
type ClientAdapter struct {
	client redis.UniversalClient
}

// NewClientAdapter creates a new client adapter
func NewClientAdapter(client redis.UniversalClient) *ClientAdapter {
	return &ClientAdapter{client: client}
}

var _ Client = (*ClientAdapter)(nil)

// Incr increments a counter
func (c *ClientAdapter) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

// IncrWithExpiry increments a counter and sets ttl on creation, atomically
func (c *ClientAdapter) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrWithExpiryScript.Run(ctx, c.client, []string{key}, ttl.Milliseconds()).Int64()
}

// Expire sets a key expiry
func (c *ClientAdapter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}

// TTL returns the remaining time to live. go-redis reports -1 (no expiry) and
// -2 (absent) as raw durations.
func (c *ClientAdapter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.PTTL(ctx, key).Result()
}

// HMGet reads hash fields
func (c *ClientAdapter) HMGet(ctx context.Context, key string, fields ...string) ([]interface{}, error) {
	return c.client.HMGet(ctx, key, fields...).Result()
}

// HSetWithExpiry writes hash fields and the key expiry in one MULTI/EXEC
func (c *ClientAdapter) HSetWithExpiry(ctx context.Context, key string, values map[string]string, ttl time.Duration) error {
	args := make([]interface{}, 0, len(values)*2)
	for k, v := range values {
		args = append(args, k, v)
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, args...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Exists reports whether key exists
func (c *ClientAdapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get reads a string value; ok is false when the key is absent
func (c *ClientAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set writes a string value
func (c *ClientAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// SetNX writes a value only if the key is absent
func (c *ClientAdapter) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// Del deletes keys
func (c *ClientAdapter) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.client.Del(ctx, keys...).Result()
}

// DelIfEqual deletes key if its value is still value
func (c *ClientAdapter) DelIfEqual(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, c.client, []string{key}, value).Int64()
	return n > 0, err
}

// Ping checks connectivity
func (c *ClientAdapter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection
func (c *ClientAdapter) Close() error {
	return c.client.Close()
}
