package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/superapp/partnerauth/internal/services"
	"github.com/superapp/partnerauth/pkg/logger"
	"github.com/superapp/partnerauth/pkg/response"
)

// OTPAuthenticator is the phone login flow used by the OTP endpoints.
type OTPAuthenticator interface {
	RequestOTP(ctx context.Context, rawPhone string) error
	VerifyOTP(ctx context.Context, rawPhone, code string, opts services.VerifyOptions) (*services.AuthResult, error)
}

// OTPHandler serves the user and partner OTP endpoints.
type OTPHandler struct {
	otp      OTPAuthenticator
	tokenTTL time.Duration
	log      *zap.Logger
}

// NewOTPHandler constructs the handler. tokenTTL is echoed to clients as expiresIn.
func NewOTPHandler(otp OTPAuthenticator, tokenTTL time.Duration) (*OTPHandler, error) {
	if otp == nil {
		return nil, errors.New("otp handler: authenticator is required")
	}
	return &OTPHandler{otp: otp, tokenTTL: tokenTTL, log: logger.WithModule("http")}, nil
}

// POST /api/auth/otp/request and /api/partners/auth/otp/request
func (h *OTPHandler) Request(c *gin.Context) {
	var req otpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.otp.RequestOTP(c.Request.Context(), req.PhoneNumber); err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c)
}

// POST /api/auth/otp/verify
func (h *OTPHandler) Verify(c *gin.Context) {
	h.verify(c, services.VerifyOptions{})
}

// POST /api/partners/auth/otp/verify
func (h *OTPHandler) VerifyPartner(c *gin.Context) {
	h.verify(c, services.VerifyOptions{Partner: true})
}

func (h *OTPHandler) verify(c *gin.Context, opts services.VerifyOptions) {
	var req otpVerifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.otp.VerifyOTP(c.Request.Context(), req.PhoneNumber, req.OTP, opts)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.JSON(c, http.StatusOK, VerifyResponse{
		Success:   true,
		Token:     result.Token,
		ExpiresIn: int(h.tokenTTL.Seconds()),
		Partner:   summarizePartner(result.Partner),
	})
}

// fail renders err. The services log invalid codes and ambiguous identities themselves,
// so only validation rejections are logged here.
func (h *OTPHandler) fail(c *gin.Context, err error) {
	appErr := serviceError(err)
	if errors.Is(err, services.ErrValidation) {
		h.log.Debug("otp request rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	_ = c.Error(err)
	response.Error(c, appErr)
}
