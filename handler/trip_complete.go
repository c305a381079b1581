package handler

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"trip-quota-service/httperrors"
	"trip-quota-service/request"
)

type TripCompletionService interface {
	RecordCompletion(ctx context.Context, userId string, fingerprint string) error
}

type completeTripRequest struct {
	DeviceFingerprint string `json:"deviceFingerprint"`
}

type completeTripResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CompleteTrip struct {
	service TripCompletionService
}

func NewCompleteTrip(service TripCompletionService) CompleteTrip {
	return CompleteTrip{
		service: service,
	}
}

func (h CompleteTrip) Handle(ctx *request.Context) error {
	req := completeTripRequest{}
	err := readJson(ctx, &req)
	if err != nil {
		return err
	}

	identity, err := ctx.GetIdentity()
	if errors.Is(err, request.ErrNotAuthenticated) {
		return writeJson(ctx, completeTripResponse{
			Success: true,
			Message: "Tourist trip recorded separately",
		})
	}

	err = h.service.RecordCompletion(ctx.Context(), identity.UserId, req.DeviceFingerprint)
	if err != nil {
		// completion is a mutation: losing the increment would hand out an
		// extra trip, so it fails closed with a retryable status
		return httperrors.New(
			http.StatusServiceUnavailable,
			"Unable to record trip. Please try again.",
			errors.WithMessage(err, "record trip completion"),
		)
	}

	return writeJson(ctx, completeTripResponse{
		Success: true,
		Message: "Trip recorded successfully",
	})
}
