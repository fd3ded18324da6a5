package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// hitScript opens, denies or increments a window in one round trip.
// Returns {allowed, count, pttl_ms}.
var hitScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if (not current) or ttl < 0 then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
  return {1, 1, tonumber(ARGV[2])}
end
local count = tonumber(current)
if count >= tonumber(ARGV[1]) then
  return {0, count, ttl}
end
count = redis.call('INCR', KEYS[1])
return {1, count, ttl}
`)

// RedisStore shares windows between processes. Window expiry is driven by
// the Redis key TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store on an existing client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "meterd:rl"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// NewRedisClient parses a redis:// URL and verifies connectivity
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(bucket, key string) string {
	return s.prefix + ":" + bucket + ":" + key
}

// Hit implements Store
func (s *RedisStore) Hit(ctx context.Context, bucket, key string, limit int, length time.Duration) (Decision, error) {
	windowMs := length.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}

	res, err := hitScript.Run(ctx, s.client, []string{s.key(bucket, key)}, limit, windowMs).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit script failed: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected redis rate limit reply: %v", res)
	}
	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	ttlMs, _ := values[2].(int64)

	remaining := time.Duration(ttlMs) * time.Millisecond
	d := Decision{
		Allowed: allowed == 1,
		Count:   int(count),
		Limit:   limit,
		ResetAt: s.now().Add(remaining),
	}
	if !d.Allowed {
		d.RetryAfter = retryAfterSeconds(remaining)
	}
	return d, nil
}
