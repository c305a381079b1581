package handler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"trip-quota-service/domain"
	"trip-quota-service/request"
	"trip-quota-service/service"
)

const (
	guestModeMessage         = "Tourist mode - 1 free trip available"
	limitsUnavailableMessage = "Unable to verify limits - proceeding"
)

type TripLimitService interface {
	Check(ctx context.Context, userId string, tier domain.Tier) (*domain.TripLimitResult, error)
}

type checkTripLimitResponse struct {
	Allowed        bool                      `json:"allowed"`
	Tier           domain.Tier               `json:"tier,omitempty"`
	CurrentUsage   int                       `json:"currentUsage"`
	Limit          int                       `json:"limit"`
	Period         domain.TripLimitPeriod    `json:"period,omitempty"`
	RemainingTrips int                       `json:"remainingTrips"`
	Message        string                    `json:"message"`
	Upgrade        *domain.UpgradeSuggestion `json:"upgrade,omitempty"`
}

type CheckTripLimit struct {
	service TripLimitService
	logger  log.Logger
}

func NewCheckTripLimit(service TripLimitService, logger log.Logger) CheckTripLimit {
	return CheckTripLimit{
		service: service,
		logger:  logger,
	}
}

func (h CheckTripLimit) Handle(ctx *request.Context) error {
	identity, err := ctx.GetIdentity()
	if errors.Is(err, request.ErrNotAuthenticated) {
		// guests are limited by the tourist ledger, not by tier quotas
		return writeJson(ctx, checkTripLimitResponse{
			Allowed: true,
			Tier:    domain.TierGuest,
			Limit:   1,
			Message: guestModeMessage,
		})
	}

	result, err := h.service.Check(ctx.Context(), identity.UserId, identity.Tier)
	if err != nil {
		// read-only check fails open: a missed verification is cheaper
		// than blocking a legitimate trip during a storage outage
		h.logger.Error(ctx.Context(),
			errors.WithMessage(err, "check trip limit, failing open"),
			log.String("userId", identity.UserId),
		)
		return writeJson(ctx, checkTripLimitResponse{
			Allowed: true,
			Tier:    identity.Tier,
			Message: limitsUnavailableMessage,
		})
	}

	response := checkTripLimitResponse{
		Allowed:        result.Allowed,
		Tier:           identity.Tier,
		CurrentUsage:   result.CurrentUsage,
		Limit:          result.Limit,
		Period:         result.Period,
		RemainingTrips: result.RemainingTrips,
		Message:        service.LimitMessage(*result),
	}
	if result.UpgradeRequired {
		upgrade := service.UpgradeSuggestion(identity.Tier)
		response.Upgrade = &upgrade
	}
	return writeJson(ctx, response)
}
