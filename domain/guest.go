package domain

import (
	"trip-quota-service/entity"
)

type GuestDenyReason string

const (
	ReasonFreeTripUsed    GuestDenyReason = "free_trip_used"
	ReasonActiveTrip      GuestDenyReason = "active_trip"
	ReasonSessionMismatch GuestDenyReason = "session_mismatch"
)

type GuestReservationStatus string

const (
	ReservationStarted GuestReservationStatus = "started"
	ReservationResumed GuestReservationStatus = "resumed"
)

type GuestReservation struct {
	Allowed bool
	Status  GuestReservationStatus
	Reason  GuestDenyReason
	Record  *entity.GuestTripRecord
}

type GuestCompletion struct {
	Completed        bool
	AlreadyCompleted bool
	Reason           GuestDenyReason
	Record           *entity.GuestTripRecord
}
