package middleware

import (
	"context"

	"github.com/pkg/errors"
	"trip-quota-service/domain"
	"trip-quota-service/httperrors"
	"trip-quota-service/request"
)

type RateLimiter interface {
	Check(ctx context.Context, identifier string) *domain.RateLimitResult
	MaxRequests() int
}

func RateLimit(limiter RateLimiter) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			identifier := ctx.RateIdentifier()
			result := limiter.Check(ctx.Context(), identifier)
			if !result.Allowed {
				return httperrors.NewRateLimit(
					"Too many AI requests. Please slow down.",
					result.RetryAfter,
					limiter.MaxRequests(),
					errors.Errorf("rate limit: too many requests for '%s'", identifier),
				)
			}

			return next.Handle(ctx)
		})
	}
}
