package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/superapp/partnerauth/internal/app"
	"github.com/superapp/partnerauth/internal/handlers"
	"github.com/superapp/partnerauth/internal/middleware"
)

// Dependencies are the collaborators the HTTP surface needs.
type Dependencies struct {
	DB        *gorm.DB
	Config    *app.Config
	OTP       handlers.OTPAuthenticator
	Partners  handlers.PartnerLookup
	Tokens    middleware.TokenValidator
	TokenTTL  time.Duration
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers the OTP login routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, errors.New("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Tokens == nil {
		return nil, errors.New("token validator must be provided")
	}

	otpHandler, err := handlers.NewOTPHandler(deps.OTP, deps.TokenTTL)
	if err != nil {
		return nil, err
	}
	partnerHandler, err := handlers.NewPartnerHandler(deps.Partners)
	if err != nil {
		return nil, err
	}

	cfg := deps.Config
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(deps.DB))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	var throttle gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if limit := cfg.Server.RateLimit; limit.Enabled {
		throttle = middleware.RateLimit(deps.RateStore, limit.Requests, limit.Window)
	}

	userAuth := r.Group("/api/auth/otp", throttle)
	{
		userAuth.POST("/request", otpHandler.Request)
		userAuth.POST("/verify", otpHandler.Verify)
	}

	partners := r.Group("/api/partners")
	{
		partnerAuth := partners.Group("/auth/otp", throttle)
		partnerAuth.POST("/request", otpHandler.Request)
		partnerAuth.POST("/verify", otpHandler.VerifyPartner)

		partners.GET("/me", middleware.Auth(deps.Tokens), partnerHandler.Me)
	}

	return r, nil
}
