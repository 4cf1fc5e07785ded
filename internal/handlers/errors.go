package handlers

import (
	"context"
	"errors"

	"github.com/superapp/partnerauth/internal/services"
	appErrors "github.com/superapp/partnerauth/pkg/errors"
)

// serviceError maps service sentinels onto the API error taxonomy. The cause is kept as
// the internal error for logs and never reaches the client.
func serviceError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrInvalidPhoneNumber):
		return appErrors.NewValidation("phoneNumber must be a valid mobile number")
	case errors.Is(err, services.ErrInvalidCodeFormat):
		return appErrors.NewValidation("otp must be exactly 6 digits")
	case errors.Is(err, services.ErrValidation):
		return appErrors.ErrValidation.WithInternal(err)
	case errors.Is(err, services.ErrInvalidOTP), errors.Is(err, services.ErrOTPNotFoundOrExpired):
		return appErrors.ErrInvalidOTP
	case errors.Is(err, services.ErrAmbiguousIdentity), errors.Is(err, services.ErrPartnerLinkConflict):
		return appErrors.ErrAmbiguousIdentity.WithInternal(err)
	case errors.Is(err, services.ErrPartnerNotFound):
		return appErrors.ErrNotFound.WithMessage("Partner profile not found")
	case errors.Is(err, services.ErrStorage),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return appErrors.ErrServiceUnavailable.WithInternal(err)
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
