package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"trip-quota-service/domain"
	"trip-quota-service/entity"
	"trip-quota-service/httperrors"
	"trip-quota-service/request"
)

type TouristAction string

const (
	ActionCheck    TouristAction = "check"
	ActionStart    TouristAction = "start"
	ActionComplete TouristAction = "complete"
	ActionUse      TouristAction = "use" // legacy alias for complete
)

const (
	freeTripAvailableMessage   = "Free trip available"
	freeTripUsedMessage        = "You've already used your free trip. Create an account to continue exploring!"
	activeTripMessage          = "You already have a trip in progress. Resume it to continue."
	usageUnavailableMessage    = "Unable to verify usage - proceeding"
	tripStartedMessage         = "Free trip started. Enjoy!"
	tripResumedMessage         = "Welcome back! Your trip is still active."
	tripCompletedMessage       = "Trip completed. Create an account to keep exploring!"
	tripAlreadyCompleteMessage = "Trip already completed"
)

type GuestTripsService interface {
	Lookup(ctx context.Context, fingerprint string, ipHash string) (*entity.GuestTripRecord, error)
	Reserve(ctx context.Context, fingerprint string, ipHash string, sessionId string) (*domain.GuestReservation, error)
	Complete(ctx context.Context, fingerprint string, ipHash string, sessionId string) (*domain.GuestCompletion, error)
}

type touristRequest struct {
	DeviceFingerprint string        `json:"deviceFingerprint"`
	Action            TouristAction `json:"action"`
	SessionId         string        `json:"sessionId"`
}

type activeTrip struct {
	SessionId string     `json:"sessionId"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

type touristCheckResponse struct {
	Allowed    bool                          `json:"allowed"`
	Status     domain.GuestReservationStatus `json:"status,omitempty"`
	Reason     domain.GuestDenyReason        `json:"reason,omitempty"`
	Message    string                        `json:"message"`
	ActiveTrip *activeTrip                   `json:"activeTrip,omitempty"`
}

type touristCompleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Tourist struct {
	service    GuestTripsService
	ipHashSalt string
	logger     log.Logger
}

func NewTourist(service GuestTripsService, ipHashSalt string, logger log.Logger) Tourist {
	return Tourist{
		service:    service,
		ipHashSalt: ipHashSalt,
		logger:     logger,
	}
}

func (h Tourist) Handle(ctx *request.Context) error {
	req := touristRequest{}
	err := readJson(ctx, &req)
	if err != nil {
		return err
	}
	if req.DeviceFingerprint == "" {
		return httperrors.New(
			http.StatusBadRequest,
			"Device fingerprint required",
			errors.New("empty device fingerprint"),
		)
	}

	ipHash := h.ipHash(ctx, req.DeviceFingerprint)

	switch req.Action {
	case "", ActionCheck:
		return h.check(ctx, req.DeviceFingerprint, ipHash)
	case ActionStart:
		return h.start(ctx, req, ipHash)
	case ActionComplete, ActionUse:
		return h.complete(ctx, req, ipHash)
	default:
		return httperrors.New(
			http.StatusBadRequest,
			`Invalid action. Use "check", "start" or "complete".`,
			errors.Errorf("unknown tourist action '%s'", req.Action),
		)
	}
}

func (h Tourist) check(ctx *request.Context, fingerprint string, ipHash string) error {
	record, err := h.service.Lookup(ctx.Context(), fingerprint, ipHash)
	switch {
	case errors.Is(err, domain.ErrGuestRecordNotFound):
		record = nil
	case err != nil:
		// read-only check fails open
		h.logger.Error(ctx.Context(),
			errors.WithMessage(err, "check tourist usage, failing open"),
			log.String("deviceFingerprint", fingerprint),
		)
		return writeJson(ctx, touristCheckResponse{
			Allowed: true,
			Message: usageUnavailableMessage,
		})
	}

	switch {
	case record != nil && (record.TripUsed || record.TripCompleted):
		return writeJson(ctx, touristCheckResponse{
			Allowed: false,
			Reason:  domain.ReasonFreeTripUsed,
			Message: freeTripUsedMessage,
		})
	case record != nil && record.TripStarted:
		return writeJson(ctx, touristCheckResponse{
			Allowed: false,
			Reason:  domain.ReasonActiveTrip,
			Message: activeTripMessage,
			ActiveTrip: &activeTrip{
				SessionId: record.ActiveSessionId,
				StartedAt: record.StartedAt,
			},
		})
	default:
		return writeJson(ctx, touristCheckResponse{
			Allowed: true,
			Message: freeTripAvailableMessage,
		})
	}
}

func (h Tourist) start(ctx *request.Context, req touristRequest, ipHash string) error {
	if req.SessionId == "" {
		return httperrors.New(
			http.StatusBadRequest,
			"Session ID required to start trip",
			errors.New("empty session id"),
		)
	}

	reservation, err := h.service.Reserve(ctx.Context(), req.DeviceFingerprint, ipHash, req.SessionId)
	if err != nil {
		// reservation mutates the ledger, so it fails closed
		return httperrors.New(
			http.StatusServiceUnavailable,
			"Unable to start trip. Please try again.",
			errors.WithMessage(err, "reserve free trip"),
		)
	}

	if !reservation.Allowed {
		response := touristCheckResponse{
			Allowed: false,
			Reason:  reservation.Reason,
			Message: freeTripUsedMessage,
		}
		if reservation.Reason == domain.ReasonActiveTrip {
			response.Message = activeTripMessage
			if reservation.Record != nil {
				response.ActiveTrip = &activeTrip{
					SessionId: reservation.Record.ActiveSessionId,
					StartedAt: reservation.Record.StartedAt,
				}
			}
		}
		return writeJson(ctx, response)
	}

	message := tripStartedMessage
	if reservation.Status == domain.ReservationResumed {
		message = tripResumedMessage
	}
	response := touristCheckResponse{
		Allowed: true,
		Status:  reservation.Status,
		Message: message,
	}
	if reservation.Record != nil {
		response.ActiveTrip = &activeTrip{
			SessionId: reservation.Record.ActiveSessionId,
			StartedAt: reservation.Record.StartedAt,
		}
	}
	return writeJson(ctx, response)
}

func (h Tourist) complete(ctx *request.Context, req touristRequest, ipHash string) error {
	completion, err := h.service.Complete(ctx.Context(), req.DeviceFingerprint, ipHash, req.SessionId)
	if err != nil {
		return httperrors.New(
			http.StatusServiceUnavailable,
			"Unable to complete trip. Please try again.",
			errors.WithMessage(err, "complete free trip"),
		)
	}

	if !completion.Completed {
		return httperrors.New(
			http.StatusConflict,
			string(domain.ReasonSessionMismatch),
			errors.Errorf("complete free trip: session mismatch for fingerprint '%s'", req.DeviceFingerprint),
		)
	}

	message := tripCompletedMessage
	if completion.AlreadyCompleted {
		message = tripAlreadyCompleteMessage
	}
	return writeJson(ctx, touristCompleteResponse{
		Success: true,
		Message: message,
	})
}

// ipHash derives the cross-check key for the used-IP index. When no client
// address is resolvable the fingerprint itself is hashed, which degrades the
// cross-check to plain fingerprint dedup but keeps the key non-empty.
func (h Tourist) ipHash(ctx *request.Context, fingerprint string) string {
	source := ctx.ClientAddress()
	if source == "" {
		source = fingerprint
	}
	sum := sha256.Sum256([]byte(source + h.ipHashSalt))
	return hex.EncodeToString(sum[:])
}
