package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"trip-quota-service/domain"
)

type UsageRepo interface {
	IncrementTrip(ctx context.Context, userId string, day time.Time, fingerprint string) error
	DailyUsage(ctx context.Context, userId string, day time.Time) (int, error)
	MonthlyUsage(ctx context.Context, userId string, month time.Time) (int, error)
}

// TripLimits answers "may this user start a trip now" for authenticated
// users. Storage errors are returned as is; the caller decides whether the
// check fails open or closed.
type TripLimits struct {
	repo   UsageRepo
	quotas TierQuotas
	now    func() time.Time
}

func NewTripLimits(repo UsageRepo, quotas TierQuotas) TripLimits {
	return TripLimits{
		repo:   repo,
		quotas: quotas,
		now:    time.Now,
	}
}

func (s TripLimits) Check(ctx context.Context, userId string, tier domain.Tier) (*domain.TripLimitResult, error) {
	quota := s.quotas.Resolve(tier)
	now := s.now()

	var (
		usage int
		err   error
	)
	switch quota.Period {
	case domain.PeriodDaily:
		usage, err = s.repo.DailyUsage(ctx, userId, now)
	case domain.PeriodMonthly:
		usage, err = s.repo.MonthlyUsage(ctx, userId, now)
	case domain.PeriodLifetime:
		// approximated by the current month's sum, as the original service
		// does; accounts are assumed not to span a billing period on this tier
		usage, err = s.repo.MonthlyUsage(ctx, userId, now)
	default:
		return nil, errors.Errorf("unknown trip limit period '%s'", quota.Period)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "load %s usage", quota.Period)
	}

	remaining := quota.Limit - usage
	if remaining < 0 {
		remaining = 0
	}
	allowed := usage < quota.Limit

	return &domain.TripLimitResult{
		Allowed:         allowed,
		CurrentUsage:    usage,
		Limit:           quota.Limit,
		Period:          quota.Period,
		RemainingTrips:  remaining,
		UpgradeRequired: !allowed,
	}, nil
}

func (s TripLimits) RecordCompletion(ctx context.Context, userId string, fingerprint string) error {
	err := s.repo.IncrementTrip(ctx, userId, s.now(), fingerprint)
	if err != nil {
		return errors.WithMessage(err, "increment trip")
	}
	return nil
}
