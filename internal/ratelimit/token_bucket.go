package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket lives in a hash {tokens, at_ms}. Tokens refill continuously at
// ARGV[1] per second up to ARGV[2]; the reply is {allowed, tokens_left}
// with tokens_left as a string so fractions survive the Lua conversion.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now_ms = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "at_ms")
local tokens = tonumber(state[1]) or burst
local at_ms = tonumber(state[2]) or now_ms

local elapsed = math.max(0, now_ms - at_ms)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "at_ms", now_ms)
redis.call("PEXPIRE", KEYS[1], ttl_ms)
return {allowed, tostring(tokens)}
`

var (
	errBucketNotConfigured = errors.New("token bucket not configured")
	errBucketReply         = errors.New("token bucket: unexpected script reply")
)

// TokenBucket is a redis-side token bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(tokenBucketScript)}
}

// Take spends one token from key. RetryAfter is how long until a token is
// available again when the call is denied.
func (t *TokenBucket) Take(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, errBucketNotConfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return nil, errors.New("token bucket: key, rate and burst are required")
	}

	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 2 {
		return nil, errBucketReply
	}
	allowed, ok := reply[0].(int64)
	if !ok {
		return nil, errBucketReply
	}
	raw, ok := reply[1].(string)
	if !ok {
		return nil, errBucketReply
	}
	left, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errBucketReply
	}

	result := &RateLimitResult{Allowed: allowed == 1}
	if !result.Allowed {
		result.RetryAfter = time.Duration((1 - left) / rate * float64(time.Second))
	}
	return result, nil
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Max(1, math.Ceil(2*float64(burst)/rate))
	return time.Duration(seconds) * time.Second
}
