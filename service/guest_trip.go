package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"trip-quota-service/domain"
	"trip-quota-service/entity"
)

type GuestTripsRepo interface {
	Get(ctx context.Context, fingerprint string) (*entity.GuestTripRecord, error)
	FindUsedByIp(ctx context.Context, ipHash string) (*entity.GuestTripRecord, error)
	Reserve(ctx context.Context, fingerprint string, ipHash string, sessionId string, startedAt time.Time) (*domain.GuestReservation, error)
	Complete(ctx context.Context, fingerprint string, ipHash string, sessionId string, completedAt time.Time) (*domain.GuestCompletion, error)
	ResetExpired(ctx context.Context, fingerprint string, now time.Time, ttl time.Duration) error
	UpdateEmail(ctx context.Context, fingerprint string, email string) error
}

// GuestTrips tracks the single anonymous free trial per device. A device
// fingerprint alone is resettable, so denial stacks three weak signals:
// fingerprint dedup, an IP-hash cross-check and session-id binding. Each is
// bypassable on its own; together they raise the cost of repeated free-trial
// abuse without requiring an account.
type GuestTrips struct {
	repo GuestTripsRepo
	ttl  time.Duration
	now  func() time.Time
}

func NewGuestTrips(repo GuestTripsRepo, ttl time.Duration) GuestTrips {
	return GuestTrips{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// ExpireStale reverts a reservation that is older than ttl and was never
// completed. There is no background sweep; expiration is only ever observed
// through the read path.
func ExpireStale(record entity.GuestTripRecord, now time.Time, ttl time.Duration) (entity.GuestTripRecord, bool) {
	if !record.TripStarted || record.TripCompleted || record.StartedAt == nil {
		return record, false
	}
	if now.Sub(*record.StartedAt) <= ttl {
		return record, false
	}
	record.TripStarted = false
	record.StartedAt = nil
	record.ActiveSessionId = ""
	return record, true
}

// Lookup finds the device's record by fingerprint, falling back to any
// used-trip record behind the same IP hash. The fallback treats two
// fingerprints behind one IP with a used trip as one user; deliberate
// anti-abuse aggressiveness, at the cost of conflating users behind a shared
// NAT. Returns domain.ErrGuestRecordNotFound when neither lookup matches.
func (s GuestTrips) Lookup(ctx context.Context, fingerprint string, ipHash string) (*entity.GuestTripRecord, error) {
	record, err := s.repo.Get(ctx, fingerprint)
	if errors.Is(err, domain.ErrGuestRecordNotFound) {
		return s.repo.FindUsedByIp(ctx, ipHash)
	}
	if err != nil {
		return nil, err
	}

	fresh, wasStale := ExpireStale(*record, s.now(), s.ttl)
	if wasStale {
		err := s.repo.ResetExpired(ctx, fingerprint, s.now(), s.ttl)
		if err != nil {
			return nil, errors.WithMessage(err, "reset expired reservation")
		}
	}
	return &fresh, nil
}

func (s GuestTrips) Reserve(ctx context.Context, fingerprint string, ipHash string, sessionId string) (*domain.GuestReservation, error) {
	existing, err := s.Lookup(ctx, fingerprint, ipHash)
	if err != nil && !errors.Is(err, domain.ErrGuestRecordNotFound) {
		return nil, err
	}
	if existing != nil && (existing.TripUsed || existing.TripCompleted) {
		return &domain.GuestReservation{
			Allowed: false,
			Reason:  domain.ReasonFreeTripUsed,
			Record:  existing,
		}, nil
	}

	// the IP-hash fallback above can only deny; the atomic transition itself
	// is keyed by the fingerprint
	return s.repo.Reserve(ctx, fingerprint, ipHash, sessionId, s.now())
}

func (s GuestTrips) Complete(ctx context.Context, fingerprint string, ipHash string, sessionId string) (*domain.GuestCompletion, error) {
	existing, err := s.Lookup(ctx, fingerprint, ipHash)
	if err != nil && !errors.Is(err, domain.ErrGuestRecordNotFound) {
		return nil, err
	}
	if existing != nil && (existing.TripCompleted || existing.TripUsed) {
		return &domain.GuestCompletion{
			Completed:        true,
			AlreadyCompleted: true,
			Record:           existing,
		}, nil
	}

	return s.repo.Complete(ctx, fingerprint, ipHash, sessionId, s.now())
}

func (s GuestTrips) SaveEmail(ctx context.Context, fingerprint string, email string) error {
	return s.repo.UpdateEmail(ctx, fingerprint, email)
}
