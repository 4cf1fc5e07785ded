package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/superapp/partnerauth/internal/auth"
	"github.com/superapp/partnerauth/pkg/errors"
	"github.com/superapp/partnerauth/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxPartnerIDKey = "partnerID"
	CtxPhoneKey     = "phone"
)

// TokenValidator parses bearer tokens into claims.
type TokenValidator interface {
	ValidateAccessToken(token string) (*iauth.Claims, error)
}

// Auth enforces bearer JWT authentication and propagates the identity into the gin context.
func Auth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := tokens.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.PartnerID != "" {
			c.Set(CtxPartnerIDKey, claims.PartnerID)
		}
		if claims.Phone != "" {
			c.Set(CtxPhoneKey, claims.Phone)
		}

		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Auth, if any.
func ClaimsFrom(c *gin.Context) (*iauth.Claims, bool) {
	value, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*iauth.Claims)
	return claims, ok && claims != nil
}
