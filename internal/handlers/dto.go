package handlers

import (
	"github.com/superapp/partnerauth/internal/models"
)

type otpRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone"`
}

type otpVerifyRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone"`
	OTP         string `json:"otp" validate:"required,otp_code"`
}

// PartnerSummary is the partner profile returned to partner-facing clients.
type PartnerSummary struct {
	ID           string   `json:"id"`
	BusinessName string   `json:"businessName"`
	PhoneNumber  string   `json:"phoneNumber"`
	Status       string   `json:"status"`
	IsVerified   bool     `json:"isVerified"`
	IsAvailable  bool     `json:"isAvailable"`
	Categories   []string `json:"categories"`
}

// VerifyResponse is the success body of the verify endpoints.
type VerifyResponse struct {
	Success   bool            `json:"success"`
	Token     string          `json:"token"`
	ExpiresIn int             `json:"expiresIn,omitempty"`
	Partner   *PartnerSummary `json:"partner,omitempty"`
}

// PartnerProfileResponse is the success body of GET /api/partners/me.
type PartnerProfileResponse struct {
	Success bool            `json:"success"`
	Partner *PartnerSummary `json:"partner"`
}

func summarizePartner(p *models.ServicePartner) *PartnerSummary {
	if p == nil {
		return nil
	}

	categories := []string(p.Categories)
	if categories == nil {
		categories = []string{}
	}

	return &PartnerSummary{
		ID:           p.ID,
		BusinessName: p.BusinessName,
		PhoneNumber:  p.PhoneNumber,
		Status:       string(p.Status),
		IsVerified:   p.IsVerified,
		IsAvailable:  p.IsAvailable,
		Categories:   categories,
	}
}
