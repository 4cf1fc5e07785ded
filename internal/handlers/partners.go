package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/superapp/partnerauth/internal/middleware"
	"github.com/superapp/partnerauth/internal/models"
	appErrors "github.com/superapp/partnerauth/pkg/errors"
	"github.com/superapp/partnerauth/pkg/response"
)

// PartnerLookup finds the partner profile owned by a user.
type PartnerLookup interface {
	PartnerForUser(ctx context.Context, userID string) (*models.ServicePartner, error)
}

// PartnerHandler serves authenticated partner profile endpoints.
type PartnerHandler struct {
	partners PartnerLookup
}

func NewPartnerHandler(partners PartnerLookup) (*PartnerHandler, error) {
	if partners == nil {
		return nil, errors.New("partner handler: lookup is required")
	}
	return &PartnerHandler{partners: partners}, nil
}

// GET /api/partners/me
func (h *PartnerHandler) Me(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	partner, err := h.partners.PartnerForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, serviceError(err))
		return
	}

	response.JSON(c, http.StatusOK, PartnerProfileResponse{
		Success: true,
		Partner: summarizePartner(partner),
	})
}
