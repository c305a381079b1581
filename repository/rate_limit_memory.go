package repository

import (
	"sync"
	"time"

	"trip-quota-service/domain"
	"trip-quota-service/entity"
)

// MemoryRateLimit mirrors the durable limiter on a process-local map. It is
// accurate within a single instance only and is used while redis is
// unavailable.
type MemoryRateLimit struct {
	buckets map[string]entity.RateLimitBucket
	lock    sync.Mutex
	now     func() time.Time
}

func NewMemoryRateLimit() *MemoryRateLimit {
	return &MemoryRateLimit{
		buckets: map[string]entity.RateLimitBucket{},
		now:     time.Now,
	}
}

func (r *MemoryRateLimit) CheckAndIncrement(
	identifier string,
	maxRequests int,
	window time.Duration,
) *domain.RateLimitResult {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.now()
	bucket, ok := r.buckets[identifier]
	if !ok || now.Sub(bucket.WindowStart) >= window {
		bucket = entity.RateLimitBucket{
			Identifier:  identifier,
			WindowStart: now,
		}
	}

	retryAfter := window - now.Sub(bucket.WindowStart)
	if retryAfter < 0 {
		retryAfter = 0
	}

	if bucket.UsedCount >= maxRequests {
		r.buckets[identifier] = bucket
		return &domain.RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: retryAfter,
		}
	}

	bucket.UsedCount++
	r.buckets[identifier] = bucket

	return &domain.RateLimitResult{
		Allowed:    true,
		Remaining:  maxRequests - bucket.UsedCount,
		RetryAfter: retryAfter,
	}
}
