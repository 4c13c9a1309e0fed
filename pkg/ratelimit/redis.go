package ratelimit

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps a ZSET of admission timestamps (millisecond
// scores) per key. Entries at or before the window start are evicted, then
// the request is admitted only when fewer than limit remain. Returns
// {allowed, count_before, oldest_surviving_score_ms}.
var slidingWindowScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local count = redis.call("ZCARD", KEYS[1])
local limit = tonumber(ARGV[2])
if count >= limit then
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  return {0, count, oldest[2]}
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {1, count, first[2]}
`)

// RedisSlidingWindow shares one window across gateway instances. Any redis
// failure falls through to the in-memory limiter, and to a permissive
// decision when no fallback is configured: rate limiting fails open.
type RedisSlidingWindow struct {
	Client   *redis.Client
	Window   time.Duration
	Prefix   string
	Fallback *SlidingWindow

	seq atomic.Uint64
}

func NewRedisSlidingWindow(client *redis.Client, window time.Duration) *RedisSlidingWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisSlidingWindow{
		Client:   client,
		Window:   window,
		Prefix:   "lumen:rl:",
		Fallback: NewSlidingWindow(window),
	}
}

func (l *RedisSlidingWindow) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	if l.Client == nil {
		return l.fallback(key, limit)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now()
	nowMs := now.UnixMilli()
	windowStartMs := nowMs - l.Window.Milliseconds()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	res, err := slidingWindowScript.Run(ctx, l.Client, []string{l.Prefix + key},
		windowStartMs, limit, nowMs, member, l.Window.Milliseconds()).Result()
	if err != nil {
		return l.fallback(key, limit)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		return l.fallback(key, limit)
	}
	allowed, _ := asInt64(vals[0])
	count, _ := asInt64(vals[1])
	oldestMs, haveOldest := asScoreMs(vals[2])
	if !haveOldest {
		oldestMs = nowMs
	}
	reset := (oldestMs + l.Window.Milliseconds()) / 1000

	if allowed == 0 {
		retryAfter := int((oldestMs+l.Window.Milliseconds()-nowMs)/1000) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{Allowed: false, Limit: limit, Remaining: 0, Reset: reset, RetryAfter: retryAfter}
	}
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: limit, Remaining: remaining, Reset: reset}
}

func (l *RedisSlidingWindow) fallback(key string, limit int) Decision {
	if l.Fallback != nil {
		return l.Fallback.Allow(key, limit)
	}
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		Reset:     time.Now().Add(l.Window).Unix(),
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// asScoreMs parses a ZSET score returned by the script. Redis hands scores
// back as strings, possibly with a fractional part.
func asScoreMs(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return int64(parsed), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
