package service

import (
	"fmt"

	"trip-quota-service/conf"
	"trip-quota-service/domain"
)

type TierQuota struct {
	Limit  int
	Period domain.TripLimitPeriod
}

// nolint:gochecknoglobals,mnd
var defaultTierQuotas = map[domain.Tier]TierQuota{
	domain.TierGuest:      {Limit: 1, Period: domain.PeriodLifetime},
	domain.TierFree:       {Limit: 1, Period: domain.PeriodLifetime},
	domain.TierStarter:    {Limit: 3, Period: domain.PeriodMonthly},
	domain.TierPro:        {Limit: 10, Period: domain.PeriodMonthly},
	domain.TierAdventurer: {Limit: 15, Period: domain.PeriodDaily},
}

type TierQuotas struct {
	quotas map[domain.Tier]TierQuota
}

func NewTierQuotas(overrides []conf.TierLimit) TierQuotas {
	if len(overrides) == 0 {
		return TierQuotas{quotas: defaultTierQuotas}
	}
	quotas := make(map[domain.Tier]TierQuota, len(overrides))
	for _, override := range overrides {
		quotas[domain.Tier(override.Tier)] = TierQuota{
			Limit:  override.Limit,
			Period: domain.TripLimitPeriod(override.Period),
		}
	}
	return TierQuotas{quotas: quotas}
}

// Resolve returns the quota for a tier, falling back to FREE for unknown
// tiers.
func (t TierQuotas) Resolve(tier domain.Tier) TierQuota {
	quota, ok := t.quotas[tier]
	if !ok {
		return t.quotas[domain.TierFree]
	}
	return quota
}

func LimitMessage(result domain.TripLimitResult) string {
	if result.Allowed {
		if result.RemainingTrips == 1 {
			unit := "month"
			if result.Period == domain.PeriodDaily {
				unit = "day"
			}
			return fmt.Sprintf("This is your last trip for this %s!", unit)
		}
		plural := "s"
		if result.RemainingTrips == 1 {
			plural = ""
		}
		return fmt.Sprintf("You have %d trip%s remaining.", result.RemainingTrips, plural)
	}

	switch result.Period {
	case domain.PeriodDaily:
		return "You've reached your daily trip limit. Trips reset at midnight!"
	case domain.PeriodMonthly:
		return "You've reached your monthly trip limit. Upgrade for more trips!"
	case domain.PeriodLifetime:
		return "You've used your free trip. Sign up to continue exploring!"
	default:
		return "You've reached your trip limit."
	}
}

func UpgradeSuggestion(currentTier domain.Tier) domain.UpgradeSuggestion {
	switch currentTier {
	case domain.TierGuest, domain.TierFree:
		return domain.UpgradeSuggestion{
			SuggestedTier: domain.TierStarter,
			Message:       "Upgrade to Starter for 3 trips per month!",
		}
	case domain.TierStarter:
		return domain.UpgradeSuggestion{
			SuggestedTier: domain.TierPro,
			Message:       "Upgrade to Explorer Pro for 10 trips per month!",
		}
	case domain.TierPro:
		return domain.UpgradeSuggestion{
			SuggestedTier: domain.TierAdventurer,
			Message:       "Upgrade to Adventurer for daily trips!",
		}
	default:
		return domain.UpgradeSuggestion{
			SuggestedTier: domain.TierAdventurer,
			Message:       "You're already on our best plan!",
		}
	}
}
