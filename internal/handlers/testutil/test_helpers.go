package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/superapp/partnerauth/internal/api"
	"github.com/superapp/partnerauth/internal/app"
	iauth "github.com/superapp/partnerauth/internal/auth"
	sharedtestutil "github.com/superapp/partnerauth/internal/database/testutil"
	"github.com/superapp/partnerauth/internal/middleware"
	"github.com/superapp/partnerauth/internal/services"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	OTP      *services.OTPService
	Resolver *services.IdentityResolver
	Outbox   *Outbox
}

// Option customises the environment before the router is built.
type Option func(*envOptions)

type envOptions struct {
	db        *gorm.DB
	rateLimit *app.RateLimitConfig
}

// WithDB runs the API against a caller-prepared database.
func WithDB(db *gorm.DB) Option {
	return func(o *envOptions) { o.db = db }
}

// WithRateLimit enables the OTP rate limiter with an in-memory store.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(o *envOptions) {
		o.rateLimit = &app.RateLimitConfig{Enabled: true, Store: "memory", Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var o envOptions
	for _, opt := range opts {
		opt(&o)
	}

	db := o.db
	if db == nil {
		db = sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithPhoneIndex())
	}

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	if o.rateLimit != nil {
		cfg.Server.RateLimit = *o.rateLimit
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store, err := services.NewOTPStore(db, cfg.OTP.StoreOptions()...)
	require.NoError(t, err)
	resolver, err := services.NewIdentityResolver(db)
	require.NoError(t, err)

	outbox := &Outbox{}
	svcOpts, err := cfg.OTP.ServiceOptions()
	require.NoError(t, err)
	otpSvc, err := services.NewOTPService(store, resolver, jwtSvc, append(svcOpts, services.WithSMSSender(outbox))...)
	require.NoError(t, err)
	t.Cleanup(otpSvc.Wait)

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		Config:    cfg,
		OTP:       otpSvc,
		Partners:  resolver,
		Tokens:    jwtSvc,
		TokenTTL:  jwtSvc.TTL(),
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		OTP:      otpSvc,
		Resolver: resolver,
		Outbox:   outbox,
	}
}

// Outbox records delivered OTP messages in place of an SMS gateway.
type Outbox struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (o *Outbox) Name() string { return "outbox" }

func (o *Outbox) Send(_ context.Context, to, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sent == nil {
		o.sent = make(map[string][]string)
	}
	o.sent[to] = append(o.sent[to], body)
	return nil
}

// Delivered waits for in-flight deliveries and returns how many messages reached phone.
func (e *Env) Delivered(phone string) int {
	e.T.Helper()
	e.OTP.Wait()

	e.Outbox.mu.Lock()
	defer e.Outbox.mu.Unlock()
	return len(e.Outbox.sent[phone])
}

// LastCode waits for in-flight deliveries and extracts the newest code sent to phone.
func (e *Env) LastCode(phone string) string {
	e.T.Helper()
	e.OTP.Wait()

	e.Outbox.mu.Lock()
	defer e.Outbox.mu.Unlock()
	messages := e.Outbox.sent[phone]
	require.NotEmpty(e.T, messages, "no otp delivered to %s", phone)

	for _, field := range strings.Fields(messages[len(messages)-1]) {
		field = strings.TrimSuffix(field, ".")
		if len(field) == 6 && strings.Trim(field, "0123456789") == "" {
			return field
		}
	}
	e.T.Fatalf("no code in message %q", messages[len(messages)-1])
	return ""
}

// Login runs the request and verify round trip and returns the verify response.
func (e *Env) Login(phone string, partner bool) VerifyResult {
	e.T.Helper()

	prefix := "/api/auth/otp"
	if partner {
		prefix = "/api/partners/auth/otp"
	}

	w := e.Request(http.MethodPost, prefix+"/request", map[string]string{"phoneNumber": phone}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	w = e.Request(http.MethodPost, prefix+"/verify", map[string]string{
		"phoneNumber": phone,
		"otp":         e.LastCode(phone),
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var result VerifyResult
	Decode(e.T, w, &result)
	require.True(e.T, result.Success)
	require.NotEmpty(e.T, result.Token)
	return result
}

// PartnerPayload mirrors the partner summary returned by the API.
type PartnerPayload struct {
	ID           string   `json:"id"`
	BusinessName string   `json:"businessName"`
	PhoneNumber  string   `json:"phoneNumber"`
	Status       string   `json:"status"`
	IsVerified   bool     `json:"isVerified"`
	IsAvailable  bool     `json:"isAvailable"`
	Categories   []string `json:"categories"`
}

// VerifyResult is the decoded body of a verify call.
type VerifyResult struct {
	Success   bool            `json:"success"`
	Token     string          `json:"token"`
	ExpiresIn int             `json:"expiresIn"`
	Partner   *PartnerPayload `json:"partner"`
}

// ErrorResult is the decoded body of a failed call.
type ErrorResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode unmarshals the recorder body into dest.
func Decode[T any](t *testing.T, w *httptest.ResponseRecorder, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

// DecodeError parses a failure body.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResult {
	t.Helper()
	var result ErrorResult
	Decode(t, w, &result)
	require.False(t, result.Success)
	return result
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	req.RemoteAddr = "192.0.2.10:51000"

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RawRequest sends body verbatim, for malformed payload tests.
func (e *Env) RawRequest(method, path, body string) *httptest.ResponseRecorder {
	e.T.Helper()

	req, err := http.NewRequest(method, path, strings.NewReader(body))
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
