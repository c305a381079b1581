package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"trip-quota-service/entity"
)

const (
	dayKeyLayout = "2006-01-02"

	// counters must outlive the calendar month they are summed over
	usageTtl = 62 * 24 * time.Hour
)

type UsageTracking struct {
	cli redis.UniversalClient
}

func NewUsageTracking(cli redis.UniversalClient) UsageTracking {
	return UsageTracking{
		cli: cli,
	}
}

// IncrementTrip upserts the per-user per-day counter. HINCRBY is atomic
// server-side, so concurrent completions for the same user and day are both
// reflected.
func (r UsageTracking) IncrementTrip(ctx context.Context, userId string, day time.Time, fingerprint string) error {
	key := r.key(userId, day)
	_, err := r.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, "trip_count", 1)
		if fingerprint != "" {
			p.HSet(ctx, key, "last_fingerprint", fingerprint)
		}
		p.ExpireNX(ctx, key, usageTtl)
		return nil
	})
	if err != nil {
		return errors.WithMessage(err, "increment trip count")
	}
	return nil
}

func (r UsageTracking) DailyUsage(ctx context.Context, userId string, day time.Time) (int, error) {
	value, err := r.cli.HGet(ctx, r.key(userId, day), "trip_count").Int()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, errors.WithMessage(err, "hget trip count")
	default:
		return value, nil
	}
}

// MonthlyUsage is the sum of the daily counters of the month that contains
// `month`, first through last day inclusive. Monthly usage is never stored
// separately.
func (r UsageTracking) MonthlyUsage(ctx context.Context, userId string, month time.Time) (int, error) {
	firstDay := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())

	cmds := make([]*redis.StringCmd, 0, 31) //nolint:mnd
	_, err := r.cli.Pipelined(ctx, func(p redis.Pipeliner) error {
		for day := firstDay; day.Month() == firstDay.Month(); day = day.AddDate(0, 0, 1) {
			cmds = append(cmds, p.HGet(ctx, r.key(userId, day), "trip_count"))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, errors.WithMessage(err, "pipelined hget trip counts")
	}

	total := 0
	for _, cmd := range cmds {
		value, err := cmd.Int()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return 0, errors.WithMessage(err, "read trip count")
		default:
			total += value
		}
	}
	return total, nil
}

func (r UsageTracking) Usage(ctx context.Context, userId string, day time.Time) (*entity.UsageCounter, error) {
	values, err := r.cli.HGetAll(ctx, r.key(userId, day)).Result()
	if err != nil {
		return nil, errors.WithMessage(err, "hgetall usage counter")
	}

	counter := &entity.UsageCounter{
		UserId:          userId,
		Date:            day.Format(dayKeyLayout),
		LastFingerprint: values["last_fingerprint"],
	}
	if raw := values["trip_count"]; raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.WithMessagef(err, "parse trip count '%s'", raw)
		}
		counter.TripCount = count
	}
	return counter, nil
}

func (r UsageTracking) key(userId string, day time.Time) string {
	return fmt.Sprintf("usage_tracking:%s:%s", userId, day.Format(dayKeyLayout))
}
