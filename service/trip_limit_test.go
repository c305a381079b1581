package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trip-quota-service/domain"
)

type usageRepoMock struct {
	dailyUsage   int
	monthlyUsage int
	err          error

	dailyCalls   int
	monthlyCalls int
	increments   []string
}

func (m *usageRepoMock) IncrementTrip(_ context.Context, userId string, _ time.Time, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.increments = append(m.increments, userId)
	return nil
}

func (m *usageRepoMock) DailyUsage(_ context.Context, _ string, _ time.Time) (int, error) {
	m.dailyCalls++
	return m.dailyUsage, m.err
}

func (m *usageRepoMock) MonthlyUsage(_ context.Context, _ string, _ time.Time) (int, error) {
	m.monthlyCalls++
	return m.monthlyUsage, m.err
}

func TestCheckDeniesExhaustedMonthlyQuota(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	repo := &usageRepoMock{monthlyUsage: 3}
	limits := NewTripLimits(repo, NewTierQuotas(nil))

	result, err := limits.Check(context.Background(), "user-1", domain.TierStarter)
	require.NoError(t, err)
	a.False(result.Allowed)
	a.Equal(3, result.CurrentUsage)
	a.Equal(3, result.Limit)
	a.Equal(domain.PeriodMonthly, result.Period)
	a.Equal(0, result.RemainingTrips)
	a.True(result.UpgradeRequired)
}

func TestCheckAllowsWithinQuota(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	repo := &usageRepoMock{monthlyUsage: 4}
	limits := NewTripLimits(repo, NewTierQuotas(nil))

	result, err := limits.Check(context.Background(), "user-1", domain.TierPro)
	require.NoError(t, err)
	a.True(result.Allowed)
	a.Equal(6, result.RemainingTrips)
	a.False(result.UpgradeRequired)
}

func TestCheckUsesDailyUsageForAdventurer(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	repo := &usageRepoMock{dailyUsage: 15}
	limits := NewTripLimits(repo, NewTierQuotas(nil))

	result, err := limits.Check(context.Background(), "user-1", domain.TierAdventurer)
	require.NoError(t, err)
	a.False(result.Allowed)
	a.Equal(domain.PeriodDaily, result.Period)
	a.Equal(1, repo.dailyCalls)
	a.Equal(0, repo.monthlyCalls)
}

func TestCheckFallsBackToFreeForUnknownTier(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	repo := &usageRepoMock{monthlyUsage: 1}
	limits := NewTripLimits(repo, NewTierQuotas(nil))

	result, err := limits.Check(context.Background(), "user-1", domain.Tier("ENTERPRISE"))
	require.NoError(t, err)
	a.False(result.Allowed)
	a.Equal(1, result.Limit)
	a.Equal(domain.PeriodLifetime, result.Period)
}

func TestCheckPropagatesStorageError(t *testing.T) {
	t.Parallel()

	repo := &usageRepoMock{err: errors.New("connection refused")}
	limits := NewTripLimits(repo, NewTierQuotas(nil))

	_, err := limits.Check(context.Background(), "user-1", domain.TierStarter)
	require.Error(t, err)
}

func TestRecordCompletion(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	repo := &usageRepoMock{}
	limits := NewTripLimits(repo, NewTierQuotas(nil))

	err := limits.RecordCompletion(context.Background(), "user-1", "fp-1")
	require.NoError(t, err)
	a.Equal([]string{"user-1"}, repo.increments)

	repo.err = errors.New("connection refused")
	err = limits.RecordCompletion(context.Background(), "user-1", "fp-1")
	require.Error(t, err)
}
