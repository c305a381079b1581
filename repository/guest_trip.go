package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"trip-quota-service/domain"
	"trip-quota-service/entity"
)

// Ledger transitions run as server-side scripts keyed by the fingerprint, so
// a decision and its write are one atomic step: two concurrent reservations
// for the same device can not both observe "unstarted".

var reserveScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'trip_used') == '1' or redis.call('HGET', KEYS[1], 'trip_completed') == '1' then
	return 'free_trip_used'
end
if redis.call('HGET', KEYS[1], 'trip_started') == '1' then
	local sid = redis.call('HGET', KEYS[1], 'active_session_id')
	if sid == ARGV[2] then
		return 'resumed'
	end
	return 'active_trip'
end
redis.call('HSET', KEYS[1],
	'ip_hash', ARGV[1],
	'trip_used', '0',
	'trip_started', '1',
	'trip_completed', '0',
	'started_at', ARGV[3],
	'active_session_id', ARGV[2])
return 'started'
`)

var completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'trip_completed') == '1' or redis.call('HGET', KEYS[1], 'trip_used') == '1' then
	return 'already_completed'
end
local sid = redis.call('HGET', KEYS[1], 'active_session_id')
if ARGV[2] ~= '' and sid and sid ~= '' and sid ~= ARGV[2] then
	return 'session_mismatch'
end
redis.call('HSET', KEYS[1],
	'ip_hash', ARGV[1],
	'trip_used', '1',
	'trip_started', '0',
	'trip_completed', '1',
	'completed_at', ARGV[3])
redis.call('HDEL', KEYS[1], 'active_session_id')
redis.call('SADD', KEYS[2], ARGV[4])
return 'completed'
`)

// resetExpiredScript reverts a stale reservation to unstarted. The staleness
// check is re-evaluated server-side so a fresh reservation written between
// the caller's read and this call is left alone.
var resetExpiredScript = redis.NewScript(`
local startedAt = tonumber(redis.call('HGET', KEYS[1], 'started_at'))
if redis.call('HGET', KEYS[1], 'trip_started') == '1'
	and redis.call('HGET', KEYS[1], 'trip_completed') ~= '1'
	and startedAt
	and tonumber(ARGV[1]) - startedAt > tonumber(ARGV[2]) then
	redis.call('HSET', KEYS[1], 'trip_started', '0')
	redis.call('HDEL', KEYS[1], 'started_at', 'active_session_id')
	return 1
end
return 0
`)

var updateEmailScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], 'email', ARGV[1])
	return 1
end
return 0
`)

type GuestTrips struct {
	cli redis.UniversalClient
}

func NewGuestTrips(cli redis.UniversalClient) GuestTrips {
	return GuestTrips{
		cli: cli,
	}
}

func (r GuestTrips) Get(ctx context.Context, fingerprint string) (*entity.GuestTripRecord, error) {
	values, err := r.cli.HGetAll(ctx, r.key(fingerprint)).Result()
	if err != nil {
		return nil, errors.WithMessage(err, "hgetall guest trip record")
	}
	if len(values) == 0 {
		return nil, domain.ErrGuestRecordNotFound
	}
	return r.record(fingerprint, values), nil
}

// FindUsedByIp returns a record with an already used trip behind the given
// IP hash, regardless of its fingerprint.
func (r GuestTrips) FindUsedByIp(ctx context.Context, ipHash string) (*entity.GuestTripRecord, error) {
	fingerprints, err := r.cli.SMembers(ctx, r.ipIndexKey(ipHash)).Result()
	if err != nil {
		return nil, errors.WithMessage(err, "smembers used trip index")
	}

	for _, fingerprint := range fingerprints {
		record, err := r.Get(ctx, fingerprint)
		if errors.Is(err, domain.ErrGuestRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.TripUsed {
			return record, nil
		}
	}
	return nil, domain.ErrGuestRecordNotFound
}

func (r GuestTrips) Reserve(
	ctx context.Context,
	fingerprint string,
	ipHash string,
	sessionId string,
	startedAt time.Time,
) (*domain.GuestReservation, error) {
	status, err := reserveScript.Run(ctx, r.cli,
		[]string{r.key(fingerprint)},
		ipHash, sessionId, startedAt.UnixMilli(),
	).Text()
	if err != nil {
		return nil, errors.WithMessage(err, "run reserve script")
	}

	record, err := r.Get(ctx, fingerprint)
	if err != nil && !errors.Is(err, domain.ErrGuestRecordNotFound) {
		return nil, err
	}

	switch status {
	case "started":
		return &domain.GuestReservation{Allowed: true, Status: domain.ReservationStarted, Record: record}, nil
	case "resumed":
		return &domain.GuestReservation{Allowed: true, Status: domain.ReservationResumed, Record: record}, nil
	case "active_trip":
		return &domain.GuestReservation{Allowed: false, Reason: domain.ReasonActiveTrip, Record: record}, nil
	case "free_trip_used":
		return &domain.GuestReservation{Allowed: false, Reason: domain.ReasonFreeTripUsed, Record: record}, nil
	default:
		return nil, errors.Errorf("unexpected reserve script response: '%s'", status)
	}
}

func (r GuestTrips) Complete(
	ctx context.Context,
	fingerprint string,
	ipHash string,
	sessionId string,
	completedAt time.Time,
) (*domain.GuestCompletion, error) {
	status, err := completeScript.Run(ctx, r.cli,
		[]string{r.key(fingerprint), r.ipIndexKey(ipHash)},
		ipHash, sessionId, completedAt.UnixMilli(), fingerprint,
	).Text()
	if err != nil {
		return nil, errors.WithMessage(err, "run complete script")
	}

	record, err := r.Get(ctx, fingerprint)
	if err != nil && !errors.Is(err, domain.ErrGuestRecordNotFound) {
		return nil, err
	}

	switch status {
	case "completed":
		return &domain.GuestCompletion{Completed: true, Record: record}, nil
	case "already_completed":
		return &domain.GuestCompletion{Completed: true, AlreadyCompleted: true, Record: record}, nil
	case "session_mismatch":
		return &domain.GuestCompletion{Reason: domain.ReasonSessionMismatch, Record: record}, nil
	default:
		return nil, errors.Errorf("unexpected complete script response: '%s'", status)
	}
}

func (r GuestTrips) ResetExpired(ctx context.Context, fingerprint string, now time.Time, ttl time.Duration) error {
	err := resetExpiredScript.Run(ctx, r.cli,
		[]string{r.key(fingerprint)},
		now.UnixMilli(), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return errors.WithMessage(err, "run reset expired script")
	}
	return nil
}

func (r GuestTrips) UpdateEmail(ctx context.Context, fingerprint string, email string) error {
	updated, err := updateEmailScript.Run(ctx, r.cli, []string{r.key(fingerprint)}, email).Int64()
	if err != nil {
		return errors.WithMessage(err, "run update email script")
	}
	if updated == 0 {
		return domain.ErrGuestRecordNotFound
	}
	return nil
}

func (r GuestTrips) record(fingerprint string, values map[string]string) *entity.GuestTripRecord {
	record := &entity.GuestTripRecord{
		DeviceFingerprint: fingerprint,
		IpHash:            values["ip_hash"],
		Email:             values["email"],
		TripUsed:          values["trip_used"] == "1",
		TripStarted:       values["trip_started"] == "1",
		TripCompleted:     values["trip_completed"] == "1",
		ActiveSessionId:   values["active_session_id"],
	}
	if ms, err := strconv.ParseInt(values["started_at"], 10, 64); err == nil {
		startedAt := time.UnixMilli(ms)
		record.StartedAt = &startedAt
	}
	if ms, err := strconv.ParseInt(values["completed_at"], 10, 64); err == nil {
		completedAt := time.UnixMilli(ms)
		record.CompletedAt = &completedAt
	}
	return record
}

func (r GuestTrips) key(fingerprint string) string {
	return fmt.Sprintf("tourist_usage:%s", fingerprint)
}

func (r GuestTrips) ipIndexKey(ipHash string) string {
	return fmt.Sprintf("tourist_usage:used_ip:%s", ipHash)
}
