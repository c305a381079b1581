package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"trip-quota-service/domain"
)

type RateLimitRepo interface {
	CheckAndIncrement(ctx context.Context, identifier string, maxRequests int, window time.Duration) (*domain.RateLimitResult, error)
}

type RateLimitFallbackRepo interface {
	CheckAndIncrement(identifier string, maxRequests int, window time.Duration) *domain.RateLimitResult
}

// RateLimiter gates AI calls with a fixed window anchored at the first
// request of each identifier. The anchored window admits up to ~2x the limit
// across a window boundary; kept as the original service behaves.
type RateLimiter struct {
	repo        RateLimitRepo
	fallback    RateLimitFallbackRepo
	maxRequests int
	window      time.Duration
	logger      log.Logger
}

func NewRateLimiter(
	repo RateLimitRepo,
	fallback RateLimitFallbackRepo,
	maxRequests int,
	window time.Duration,
	logger log.Logger,
) RateLimiter {
	return RateLimiter{
		repo:        repo,
		fallback:    fallback,
		maxRequests: maxRequests,
		window:      window,
		logger:      logger,
	}
}

// Check never returns an error. On a storage error it falls back to a
// process-local counter, trading cross-instance accuracy for availability:
// a chat response proceeds rather than being blocked by an infrastructure
// hiccup.
func (s RateLimiter) Check(ctx context.Context, identifier string) *domain.RateLimitResult {
	result, err := s.repo.CheckAndIncrement(ctx, identifier, s.maxRequests, s.window)
	if err != nil {
		s.logger.Error(ctx,
			errors.WithMessage(err, "rate limit storage unavailable, falling back to in-memory counter"),
			log.String("identifier", identifier),
		)
		return s.fallback.CheckAndIncrement(identifier, s.maxRequests, s.window)
	}
	return result
}

func (s RateLimiter) MaxRequests() int {
	return s.maxRequests
}
