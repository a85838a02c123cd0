package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/safeher/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultSendsPerWindow = 10
	defaultWindow         = time.Second
	rateLimitPrefix       = "safeher:sms:ratelimit:"
)

// slidingWindowScript keeps one sorted-set member per admitted send, scored by
// its time in milliseconds. It returns 0 when the send is admitted, otherwise the
// milliseconds until the oldest send leaves the window.
var slidingWindowScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return 0
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local retry = tonumber(oldest[2]) + window - now
if retry < 1 then
  retry = 1
end
return retry
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter admits at most limit SMS sends per sliding window and scope. The
// window lives in Redis so the api and any other sender share one budget.
type RedisRateLimiter struct {
	client *goredis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	newID  func() string
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), defaultWindow, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = defaultSendsPerWindow
	}
	if window < time.Millisecond {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    nowFn,
		sleep:  sleepFn,
		newID:  uuid.NewString,
	}, nil
}

// Allow admits one send if the scope has budget left in the current window.
func (r *RedisRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	retry, err := r.take(ctx, scope)
	if err != nil {
		return false, err
	}
	return retry == 0, nil
}

// Wait blocks until a send is admitted, sleeping exactly until the oldest send in
// the window expires.
func (r *RedisRateLimiter) Wait(ctx context.Context, scope string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		retry, err := r.take(ctx, scope)
		if err != nil {
			return err
		}
		if retry == 0 {
			return nil
		}
		if err := r.sleep(ctx, retry); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) take(ctx context.Context, scope string) (time.Duration, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}
	normalized := strings.ToLower(strings.TrimSpace(scope))
	if normalized == "" {
		return 0, fmt.Errorf("rate limit scope is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	retryMs, err := slidingWindowScript.Run(ctx, r.client,
		[]string{rateLimitPrefix + normalized},
		r.now().UTC().UnixMilli(),
		r.window.Milliseconds(),
		r.limit,
		r.newID(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate sms rate limit: %w", err)
	}
	return time.Duration(retryMs) * time.Millisecond, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
