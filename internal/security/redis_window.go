// internal/security/redis_window.go
package security

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript implements check-then-increment atomically on the Redis side:
// once a key has reached max, further calls return 0 without incrementing,
// and the TTL set on first increment gives the lazy window reset.
var takeScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[2]) then
  return 0
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return 1
`)

// RedisWindowStore is the shared-state WindowStore for multi-instance
// deployments. Each policy key lives under its own namespace prefix.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

func NewRedisWindowStore(client *redis.Client, prefix string) *RedisWindowStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisWindowStore{client: client, prefix: prefix}
}

func (s *RedisWindowStore) Take(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	res, err := takeScript.Run(ctx, s.client,
		[]string{s.prefix + ":" + key},
		window.Milliseconds(), max,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
