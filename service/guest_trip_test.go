package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trip-quota-service/domain"
	"trip-quota-service/entity"
)

type guestRepoMock struct {
	records  map[string]entity.GuestTripRecord
	usedByIp map[string]entity.GuestTripRecord

	reserveCalls int
	resetCalls   int
}

func newGuestRepoMock() *guestRepoMock {
	return &guestRepoMock{
		records:  map[string]entity.GuestTripRecord{},
		usedByIp: map[string]entity.GuestTripRecord{},
	}
}

func (m *guestRepoMock) Get(_ context.Context, fingerprint string) (*entity.GuestTripRecord, error) {
	record, ok := m.records[fingerprint]
	if !ok {
		return nil, domain.ErrGuestRecordNotFound
	}
	return &record, nil
}

func (m *guestRepoMock) FindUsedByIp(_ context.Context, ipHash string) (*entity.GuestTripRecord, error) {
	record, ok := m.usedByIp[ipHash]
	if !ok {
		return nil, domain.ErrGuestRecordNotFound
	}
	return &record, nil
}

func (m *guestRepoMock) Reserve(
	_ context.Context,
	fingerprint string,
	ipHash string,
	sessionId string,
	startedAt time.Time,
) (*domain.GuestReservation, error) {
	m.reserveCalls++
	record, ok := m.records[fingerprint]
	if ok && record.TripStarted {
		if record.ActiveSessionId == sessionId {
			return &domain.GuestReservation{Allowed: true, Status: domain.ReservationResumed, Record: &record}, nil
		}
		return &domain.GuestReservation{Allowed: false, Reason: domain.ReasonActiveTrip, Record: &record}, nil
	}
	record = entity.GuestTripRecord{
		DeviceFingerprint: fingerprint,
		IpHash:            ipHash,
		TripStarted:       true,
		StartedAt:         &startedAt,
		ActiveSessionId:   sessionId,
	}
	m.records[fingerprint] = record
	return &domain.GuestReservation{Allowed: true, Status: domain.ReservationStarted, Record: &record}, nil
}

func (m *guestRepoMock) Complete(
	_ context.Context,
	fingerprint string,
	ipHash string,
	sessionId string,
	completedAt time.Time,
) (*domain.GuestCompletion, error) {
	record := m.records[fingerprint]
	if record.ActiveSessionId != "" && sessionId != "" && record.ActiveSessionId != sessionId {
		return &domain.GuestCompletion{Reason: domain.ReasonSessionMismatch, Record: &record}, nil
	}
	record.DeviceFingerprint = fingerprint
	record.TripUsed = true
	record.TripStarted = false
	record.TripCompleted = true
	record.CompletedAt = &completedAt
	record.ActiveSessionId = ""
	m.records[fingerprint] = record
	m.usedByIp[ipHash] = record
	return &domain.GuestCompletion{Completed: true, Record: &record}, nil
}

func (m *guestRepoMock) ResetExpired(_ context.Context, fingerprint string, now time.Time, ttl time.Duration) error {
	m.resetCalls++
	record, ok := m.records[fingerprint]
	if !ok {
		return nil
	}
	fresh, wasStale := ExpireStale(record, now, ttl)
	if wasStale {
		m.records[fingerprint] = fresh
	}
	return nil
}

func (m *guestRepoMock) UpdateEmail(_ context.Context, fingerprint string, email string) error {
	record, ok := m.records[fingerprint]
	if !ok {
		return domain.ErrGuestRecordNotFound
	}
	record.Email = email
	m.records[fingerprint] = record
	return nil
}

func newGuestTrips(repo GuestTripsRepo, now time.Time) GuestTrips {
	service := NewGuestTrips(repo, 12*time.Hour)
	service.now = func() time.Time { return now }
	return service
}

func TestExpireStale(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	ttl := 12 * time.Hour
	startedAt := now.Add(-13 * time.Hour)

	stale := entity.GuestTripRecord{TripStarted: true, StartedAt: &startedAt, ActiveSessionId: "session-1"}
	fresh, wasStale := ExpireStale(stale, now, ttl)
	a.True(wasStale)
	a.False(fresh.TripStarted)
	a.Nil(fresh.StartedAt)
	a.Empty(fresh.ActiveSessionId)

	recentStart := now.Add(-time.Hour)
	active := entity.GuestTripRecord{TripStarted: true, StartedAt: &recentStart, ActiveSessionId: "session-1"}
	unchanged, wasStale := ExpireStale(active, now, ttl)
	a.False(wasStale)
	a.Equal(active, unchanged)

	// completed trips never expire back to unstarted
	completed := entity.GuestTripRecord{TripStarted: true, TripCompleted: true, StartedAt: &startedAt}
	unchanged, wasStale = ExpireStale(completed, now, ttl)
	a.False(wasStale)
	a.Equal(completed, unchanged)

	unstarted := entity.GuestTripRecord{}
	_, wasStale = ExpireStale(unstarted, now, ttl)
	a.False(wasStale)
}

func TestLookupFallsBackToIpIndex(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := newGuestRepoMock()
	repo.usedByIp["ip-hash-1"] = entity.GuestTripRecord{DeviceFingerprint: "other-device", TripUsed: true}
	service := newGuestTrips(repo, now)

	record, err := service.Lookup(context.Background(), "fresh-device", "ip-hash-1")
	require.NoError(t, err)
	a.True(record.TripUsed)
	a.Equal("other-device", record.DeviceFingerprint)

	_, err = service.Lookup(context.Background(), "fresh-device", "unknown-ip-hash")
	require.ErrorIs(t, err, domain.ErrGuestRecordNotFound)
}

func TestLookupExpiresStaleReservation(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-13 * time.Hour)
	repo := newGuestRepoMock()
	repo.records["device-1"] = entity.GuestTripRecord{
		DeviceFingerprint: "device-1",
		TripStarted:       true,
		StartedAt:         &startedAt,
		ActiveSessionId:   "session-1",
	}
	service := newGuestTrips(repo, now)

	record, err := service.Lookup(context.Background(), "device-1", "ip-hash-1")
	require.NoError(t, err)
	a.False(record.TripStarted)
	a.Equal(1, repo.resetCalls)
	a.False(repo.records["device-1"].TripStarted)
}

func TestReserve(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := newGuestRepoMock()
	service := newGuestTrips(repo, now)
	ctx := context.Background()

	reservation, err := service.Reserve(ctx, "device-1", "ip-hash-1", "session-1")
	require.NoError(t, err)
	a.True(reservation.Allowed)
	a.Equal(domain.ReservationStarted, reservation.Status)

	// same session resumes the reservation
	reservation, err = service.Reserve(ctx, "device-1", "ip-hash-1", "session-1")
	require.NoError(t, err)
	a.True(reservation.Allowed)
	a.Equal(domain.ReservationResumed, reservation.Status)

	// another session is locked out while the trip is active
	reservation, err = service.Reserve(ctx, "device-1", "ip-hash-1", "session-2")
	require.NoError(t, err)
	a.False(reservation.Allowed)
	a.Equal(domain.ReasonActiveTrip, reservation.Reason)
}

func TestReserveDeniedAfterUsedTrip(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := newGuestRepoMock()
	repo.records["device-1"] = entity.GuestTripRecord{DeviceFingerprint: "device-1", TripUsed: true, TripCompleted: true}
	service := newGuestTrips(repo, now)

	reservation, err := service.Reserve(context.Background(), "device-1", "ip-hash-1", "session-1")
	require.NoError(t, err)
	a.False(reservation.Allowed)
	a.Equal(domain.ReasonFreeTripUsed, reservation.Reason)
	a.Equal(0, repo.reserveCalls)
}

func TestReserveDeniedByIpMatch(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := newGuestRepoMock()
	repo.usedByIp["ip-hash-1"] = entity.GuestTripRecord{DeviceFingerprint: "other-device", TripUsed: true}
	service := newGuestTrips(repo, now)

	// a new fingerprint behind an IP with a used trip is treated as the same user
	reservation, err := service.Reserve(context.Background(), "fresh-device", "ip-hash-1", "session-1")
	require.NoError(t, err)
	a.False(reservation.Allowed)
	a.Equal(domain.ReasonFreeTripUsed, reservation.Reason)
	a.Equal(0, repo.reserveCalls)
}

func TestReserveAllowedAfterExpiredReservation(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-13 * time.Hour)
	repo := newGuestRepoMock()
	repo.records["device-1"] = entity.GuestTripRecord{
		DeviceFingerprint: "device-1",
		TripStarted:       true,
		StartedAt:         &startedAt,
		ActiveSessionId:   "session-1",
	}
	service := newGuestTrips(repo, now)

	reservation, err := service.Reserve(context.Background(), "device-1", "ip-hash-1", "session-2")
	require.NoError(t, err)
	a.True(reservation.Allowed)
	a.Equal(domain.ReservationStarted, reservation.Status)
}

func TestComplete(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := newGuestRepoMock()
	service := newGuestTrips(repo, now)
	ctx := context.Background()

	_, err := service.Reserve(ctx, "device-1", "ip-hash-1", "session-1")
	require.NoError(t, err)

	completion, err := service.Complete(ctx, "device-1", "ip-hash-1", "session-1")
	require.NoError(t, err)
	a.True(completion.Completed)
	a.False(completion.AlreadyCompleted)
	a.True(repo.records["device-1"].TripUsed)

	// completing twice is idempotent
	completion, err = service.Complete(ctx, "device-1", "ip-hash-1", "session-1")
	require.NoError(t, err)
	a.True(completion.Completed)
	a.True(completion.AlreadyCompleted)
}

func TestCompleteSessionMismatch(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := newGuestRepoMock()
	service := newGuestTrips(repo, now)
	ctx := context.Background()

	_, err := service.Reserve(ctx, "device-1", "ip-hash-1", "session-1")
	require.NoError(t, err)

	completion, err := service.Complete(ctx, "device-1", "ip-hash-1", "session-2")
	require.NoError(t, err)
	a.False(completion.Completed)
	a.Equal(domain.ReasonSessionMismatch, completion.Reason)
}

func TestSaveEmail(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := newGuestRepoMock()
	repo.records["device-1"] = entity.GuestTripRecord{DeviceFingerprint: "device-1", TripUsed: true}
	service := newGuestTrips(repo, now)

	err := service.SaveEmail(context.Background(), "device-1", "traveler@example.com")
	require.NoError(t, err)
	a.Equal("traveler@example.com", repo.records["device-1"].Email)

	err = service.SaveEmail(context.Background(), "unknown-device", "traveler@example.com")
	require.ErrorIs(t, err, domain.ErrGuestRecordNotFound)
}
