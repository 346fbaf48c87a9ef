package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// slidingWindowScript counts hits in a sorted set scored by unix seconds.
// Returns {allowed, resetAt}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    if #oldest >= 2 then
        return {0, tonumber(oldest[2]) + window}
    end
    return {0, now + window}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)
return {1, now + window}
`)

// RateLimiter is a Redis sliding-window limiter shared across instances.
type RateLimiter struct {
	client redis.Scripter
	// failOpen admits requests when Redis is unreachable.
	failOpen bool
}

func NewRateLimiter(client redis.Scripter) *RateLimiter {
	return &RateLimiter{client: client}
}

// FailOpen makes the limiter admit requests while Redis is down instead of
// refusing them.
func (rl *RateLimiter) FailOpen() *RateLimiter {
	rl.failOpen = true
	return rl
}

// CheckLimit records a hit for key and reports whether it is within limit.
func (rl *RateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (allowed bool, resetAt time.Time) {
	now := time.Now().Unix()

	result, err := slidingWindowScript.Run(
		ctx,
		rl.client,
		[]string{fmt.Sprintf("ratelimit:%s", key)},
		now,
		int64(window.Seconds()),
		limit,
	).Int64Slice()

	if err == nil && len(result) != 2 {
		err = fmt.Errorf("unexpected result length %d", len(result))
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Bool("failOpen", rl.failOpen).
			Msg("rate limit check failed")
		return rl.failOpen, time.Now().Add(window)
	}

	return result[0] == 1, time.Unix(result[1], 0)
}
