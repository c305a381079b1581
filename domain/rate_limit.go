package domain

import (
	"time"
)

type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}
