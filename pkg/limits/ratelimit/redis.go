package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript applies the fixed-window step inside Redis so that concurrent
// gateways sharing one counter cannot interleave between read and write.
// Returns {count, ttl_ms, allowed}.
var takeScript = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if n == 0 or ttl < 0 then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[1])
  return {1, tonumber(ARGV[1]), 1}
end
if n < tonumber(ARGV[2]) then
  redis.call('INCR', KEYS[1])
  return {n + 1, ttl, 1}
end
return {n, ttl, 0}
`)

// refundScript decrements a live counter whose TTL does not outlive the
// admitted window by more than ARGV[2] ms. A key that was deleted and
// recreated since admission has a longer TTL and is left alone.
var refundScript = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if n > 0 and ttl > 0 and ttl <= tonumber(ARGV[1]) + tonumber(ARGV[2]) then
  redis.call('DECR', KEYS[1])
  return 1
end
return 0
`)

// refundSkew tolerates rounding between the admitted ResetAt and the
// key's TTL.
const refundSkew = 250 * time.Millisecond

// RedisStore keeps Records in Redis so several berth instances share one
// budget per key. Window expiry is delegated to Redis key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using client. Keys are namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "berth:rl:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Record, bool, error) {
	vals, err := takeScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds(), max).Int64Slice()
	if err != nil {
		return Record{}, false, fmt.Errorf("redis take %q: %w", key, err)
	}
	if len(vals) != 3 {
		return Record{}, false, fmt.Errorf("redis take %q: unexpected reply length %d", key, len(vals))
	}
	rec := Record{
		Count:   int(vals[0]),
		ResetAt: now.Add(time.Duration(vals[1]) * time.Millisecond),
	}
	return rec, vals[2] == 1, nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string, now time.Time) (Record, bool, error) {
	k := s.prefix + key
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, false, fmt.Errorf("redis peek %q: %w", key, err)
	}

	count, err := getCmd.Int()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis peek %q: %w", key, err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		return Record{}, false, nil
	}
	return Record{Count: count, ResetAt: now.Add(ttl)}, true, nil
}

// Refund implements Store.
func (s *RedisStore) Refund(ctx context.Context, key string, now, resetAt time.Time) error {
	remaining := resetAt.Sub(now)
	if remaining <= 0 {
		return nil
	}
	err := refundScript.Run(ctx, s.client, []string{s.prefix + key},
		remaining.Milliseconds(), refundSkew.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis refund %q: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %q: %w", key, err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
