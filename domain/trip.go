package domain

type Tier string

const (
	TierGuest      Tier = "GUEST"
	TierFree       Tier = "FREE"
	TierStarter    Tier = "STARTER"
	TierPro        Tier = "PRO"
	TierAdventurer Tier = "ADVENTURER"
)

type TripLimitPeriod string

const (
	PeriodDaily    TripLimitPeriod = "daily"
	PeriodMonthly  TripLimitPeriod = "monthly"
	PeriodLifetime TripLimitPeriod = "lifetime"
)

type TripLimitResult struct {
	Allowed         bool
	CurrentUsage    int
	Limit           int
	Period          TripLimitPeriod
	RemainingTrips  int
	UpgradeRequired bool
}

type UpgradeSuggestion struct {
	SuggestedTier Tier   `json:"suggestedTier"`
	Message       string `json:"message"`
}
