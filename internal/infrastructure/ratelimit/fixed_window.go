// Package ratelimit provides a redis-backed fixed-window rate limiter for
// the generation endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpire increments the window counter and sets its TTL on first
// increment, atomically.
var incrWithExpire = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindow allows at most Limit events per Window per key. On redis
// errors it fails closed: the event is denied and the error returned.
type FixedWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewFixedWindow(client *redis.Client, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{client: client, limit: limit, window: window}
}

// Allow reports whether one more event is permitted for key in the current
// window.
func (l *FixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:generate:%s", key)
	count, err := incrWithExpire.Run(ctx, l.client, []string{redisKey}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return count <= int64(l.limit), nil
}
