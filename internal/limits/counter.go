package limits

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Counter is an ephemeral keyed counter. Losing its state only relaxes limits.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
}

// MemoryCounter keeps counts in process memory.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryCounter creates an empty MemoryCounter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (c *MemoryCounter) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

// Decr never goes below zero and drops keys that reach it.
func (c *MemoryCounter) Decr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.counts[key] - 1
	if n <= 0 {
		delete(c.counts, key)
		return 0, nil
	}
	c.counts[key] = n
	return n, nil
}

// decrScript keeps the Redis counter from going negative and removes it at zero.
var decrScript = redis.NewScript(`
local v = redis.call('DECR', KEYS[1])
if v <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
return v
`)

// RedisCounter shares counts between processes. Every increment refreshes the key's TTL,
// so counts leaked by a crashed process expire instead of blocking a user forever.
type RedisCounter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCounter builds a RedisCounter.
func NewRedisCounter(client *redis.Client, ttl time.Duration) *RedisCounter {
	return &RedisCounter{client: client, ttl: ttl}
}

func (c *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Decr(ctx context.Context, key string) (int64, error) {
	return decrScript.Run(ctx, c.client, []string{key}).Int64()
}
