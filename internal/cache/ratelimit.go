package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// bucket describes one family of token buckets.
type bucket struct {
	prefix string
	per    time.Duration // refill period for rate tokens
	ttl    time.Duration
}

var (
	userBucket = bucket{prefix: "ratelimit:user:", per: time.Minute, ttl: 2 * time.Minute}
	ipBucket   = bucket{prefix: "ratelimit:ip:", per: time.Second, ttl: 10 * time.Second}
)

// tokenBucketScript refills and consumes a bucket atomically.
// Times are in milliseconds so per-second limits refill smoothly.
// Returns {allowed, retry_after_ms, remaining_tokens}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per millisecond
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])       -- milliseconds

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1]) or burst
	local ts = tonumber(data[2]) or now

	if now > ts then
		tokens = math.min(burst, tokens + (now - ts) * rate)
	end

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now)
	redis.call('PEXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckUserRateLimit takes one token from the caller's per-minute bucket.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	return c.take(ctx, userBucket, userID, ratePerMinute, burst)
}

// CheckIPRateLimit takes one token from the client's per-second bucket.
// Used for the unauthenticated register and token endpoints. The address is
// hashed so raw IPs never land in Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.take(ctx, ipBucket, hashIP(ip), ratePerSecond, burst)
}

// take runs the bucket script. A zero rate disables limiting and Redis
// errors fail open.
func (c *Cache) take(ctx context.Context, b bucket, id string, rate, burst int) (*RateLimitResult, error) {
	now := time.Now()
	open := &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: now.Add(b.per)}
	if rate <= 0 {
		return open, nil
	}

	perMilli := float64(rate) / float64(b.per.Milliseconds())
	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{b.prefix + id},
		perMilli, burst, now.UnixMilli(), b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		return open, nil
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(float64(time.Millisecond) / perMilli)),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

// hashIP returns a truncated SHA-256 of an IP address (16 hex chars).
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
