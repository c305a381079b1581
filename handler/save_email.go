package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"trip-quota-service/domain"
	"trip-quota-service/httperrors"
	"trip-quota-service/request"
)

type GuestEmailService interface {
	SaveEmail(ctx context.Context, fingerprint string, email string) error
}

type saveEmailRequest struct {
	DeviceFingerprint string `json:"deviceFingerprint"`
	Email             string `json:"email"`
}

type saveEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SaveEmail struct {
	service GuestEmailService
}

func NewSaveEmail(service GuestEmailService) SaveEmail {
	return SaveEmail{
		service: service,
	}
}

func (h SaveEmail) Handle(ctx *request.Context) error {
	req := saveEmailRequest{}
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
	if !strings.Contains(req.Email, "@") {
		return httperrors.New(
			http.StatusBadRequest,
			"Valid email required",
			errors.Errorf("invalid email '%s'", req.Email),
		)
	}

	err = h.service.SaveEmail(ctx.Context(), req.DeviceFingerprint, req.Email)
	switch {
	case errors.Is(err, domain.ErrGuestRecordNotFound):
		// nothing to attach the email to; reported as success so the client
		// does not retry
	case err != nil:
		return httperrors.New(
			http.StatusServiceUnavailable,
			"Unable to save email. Please try again.",
			errors.WithMessage(err, "save guest email"),
		)
	}

	return writeJson(ctx, saveEmailResponse{
		Success: true,
		Message: "Email saved. We'll send your trip summary!",
	})
}
