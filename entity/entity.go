package entity

import (
	"time"
)

type RateLimitBucket struct {
	Identifier  string
	WindowStart time.Time
	UsedCount   int
}

type UsageCounter struct {
	UserId          string
	Date            string
	TripCount       int
	LastFingerprint string
}

// GuestTripRecord is the permanent dedup marker for a device. It is created
// on the first reservation attempt and never hard-deleted.
type GuestTripRecord struct {
	DeviceFingerprint string
	IpHash            string
	Email             string
	TripUsed          bool
	TripStarted       bool
	TripCompleted     bool
	StartedAt         *time.Time
	CompletedAt       *time.Time
	ActiveSessionId   string
}
