package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// slidingWindowScript trims entries scored at or below the cutoff from a
// sorted set of microsecond timestamps and admits the request when fewer
// than limit remain. Scores are passed as strings so no Lua number
// formatting touches them. It returns {allowed, count}.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
    return {0, count}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, count + 1}
`)

// RateLimiter implements domain.RateLimiter on redis sorted sets, so every
// serve process behind the same redis shares one budget per client.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter on c.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying()}
}

// Allow records a request under "ratelimit:<key>" if it fits in the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	ttl := window.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	now := time.Now().UnixMicro()
	res, err := slidingWindowScript.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(now-window.Microseconds(), 10),
		limit,
		uuid.NewString(),
		ttl,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply length %d", key, len(res))
	}
	return res[0] == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
