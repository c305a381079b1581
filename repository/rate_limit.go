package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"trip-quota-service/domain"
)

// checkAndIncrementScript applies one request to a fixed window anchored at
// the identifier's first request. Check and increment happen in a single
// server-side step, so two concurrent callers can not both observe
// "under limit" at the boundary.
var checkAndIncrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local start = tonumber(redis.call('HGET', KEYS[1], 'window_start'))
local used = tonumber(redis.call('HGET', KEYS[1], 'used_count'))
if not start or now - start >= window then
	start = now
	used = 0
end

local allowed = 0
if used < max then
	used = used + 1
	allowed = 1
end

redis.call('HSET', KEYS[1], 'window_start', start, 'used_count', used)
redis.call('PEXPIRE', KEYS[1], window)
return {allowed, used, start}
`)

type RateLimit struct {
	cli redis.UniversalClient
}

func NewRateLimit(cli redis.UniversalClient) RateLimit {
	return RateLimit{
		cli: cli,
	}
}

func (r RateLimit) CheckAndIncrement(
	ctx context.Context,
	identifier string,
	maxRequests int,
	window time.Duration,
) (*domain.RateLimitResult, error) {
	now := time.Now()
	values, err := checkAndIncrementScript.Run(ctx, r.cli,
		[]string{r.key(identifier)},
		now.UnixMilli(), window.Milliseconds(), maxRequests,
	).Int64Slice()
	if err != nil {
		return nil, errors.WithMessage(err, "run check and increment script")
	}
	if len(values) != 3 { //nolint:mnd
		return nil, errors.Errorf("unexpected script response: %v", values)
	}

	used := int(values[1])
	windowStart := time.UnixMilli(values[2])
	retryAfter := window - now.Sub(windowStart)
	if retryAfter < 0 {
		retryAfter = 0
	}
	remaining := maxRequests - used
	if remaining < 0 {
		remaining = 0
	}

	return &domain.RateLimitResult{
		Allowed:    values[0] == 1,
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}, nil
}

func (r RateLimit) key(identifier string) string {
	return fmt.Sprintf("rate_limit_buckets:%s", identifier)
}
