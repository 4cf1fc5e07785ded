package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/superapp/partnerauth/internal/auth"
	"github.com/superapp/partnerauth/internal/models"
	"github.com/superapp/partnerauth/pkg/logger"
	"github.com/superapp/partnerauth/pkg/metrics"
	"github.com/superapp/partnerauth/pkg/phone"
	"github.com/superapp/partnerauth/pkg/sms"
)

const defaultDispatchTimeout = 5 * time.Second

// TokenIssuer mints the bearer credential returned after a successful login.
type TokenIssuer interface {
	GenerateAccessToken(input auth.AccessTokenInput) (string, error)
}

// VerifyOptions selects the login flow.
type VerifyOptions struct {
	// Partner resolves (or creates) the partner profile and returns it with the token.
	Partner bool
}

// AuthResult is the outcome of a successful verification.
type AuthResult struct {
	Token   string
	User    *models.User
	Partner *models.ServicePartner
}

// OTPServiceOption customises the OTPService.
type OTPServiceOption func(*OTPService)

// WithSMSSender sets the delivery collaborator.
func WithSMSSender(sender sms.Sender) OTPServiceOption {
	return func(s *OTPService) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithPhoneNormalizer overrides the accepted phone pattern.
func WithPhoneNormalizer(n *phone.Normalizer) OTPServiceOption {
	return func(s *OTPService) {
		if n != nil {
			s.phones = n
		}
	}
}

// WithDispatchTimeout bounds a single delivery attempt.
func WithDispatchTimeout(d time.Duration) OTPServiceOption {
	return func(s *OTPService) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

// OTPService runs the request and verify halves of the phone login flow.
type OTPService struct {
	store           *OTPStore
	resolver        *IdentityResolver
	tokens          TokenIssuer
	sender          sms.Sender
	phones          *phone.Normalizer
	dispatchTimeout time.Duration
	log             *zap.Logger
	inflight        sync.WaitGroup
}

// NewOTPService wires the OTP store, identity resolver and token issuer.
func NewOTPService(store *OTPStore, resolver *IdentityResolver, tokens TokenIssuer, opts ...OTPServiceOption) (*OTPService, error) {
	if store == nil {
		return nil, errors.New("otp service: store is required")
	}
	if resolver == nil {
		return nil, errors.New("otp service: identity resolver is required")
	}
	if tokens == nil {
		return nil, errors.New("otp service: token issuer is required")
	}

	svc := &OTPService{
		store:           store,
		resolver:        resolver,
		tokens:          tokens,
		sender:          sms.NewLogSender(),
		phones:          phone.MustNormalizer(phone.DefaultPattern, phone.DefaultCountryCode),
		dispatchTimeout: defaultDispatchTimeout,
		log:             logger.WithModule("otp"),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// NormalizePhone canonicalises raw input or fails with ErrInvalidPhoneNumber.
func (s *OTPService) NormalizePhone(raw string) (string, error) {
	canonical, err := s.phones.Normalize(raw)
	if err != nil {
		return "", ErrInvalidPhoneNumber
	}
	return canonical, nil
}

// RequestOTP issues a code for rawPhone and hands it to the SMS sender in the
// background. Delivery failures are logged and never reported to the caller.
func (s *OTPService) RequestOTP(ctx context.Context, rawPhone string) error {
	canonical, err := s.NormalizePhone(rawPhone)
	if err != nil {
		return err
	}

	code, record, err := s.store.Issue(ctx, canonical)
	if err != nil {
		s.log.Error("issue otp failed", logger.Phone(canonical), zap.Error(err))
		return err
	}

	s.log.Debug("otp issued", logger.Phone(canonical), zap.String("record_id", record.ID))
	s.dispatch(ctx, canonical, sms.OTPMessage(code, s.store.TTL()))
	return nil
}

func (s *OTPService) dispatch(ctx context.Context, to, body string) {
	// Keep trace values but outlive the request.
	base := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		sendCtx, cancel := context.WithTimeout(base, s.dispatchTimeout)
		defer cancel()

		if err := s.sender.Send(sendCtx, to, body); err != nil {
			metrics.SMSDispatch.WithLabelValues(s.sender.Name(), "failure").Inc()
			s.log.Warn("otp delivery failed",
				logger.Phone(to),
				zap.String("driver", s.sender.Name()),
				zap.Error(err),
			)
			return
		}
		metrics.SMSDispatch.WithLabelValues(s.sender.Name(), "success").Inc()
	}()
}

// Wait blocks until background deliveries have finished.
func (s *OTPService) Wait() {
	s.inflight.Wait()
}

// VerifyOTP consumes the code and resolves the caller's identity. Every code
// failure, including an unknown phone, is reported as ErrInvalidOTP.
func (s *OTPService) VerifyOTP(ctx context.Context, rawPhone, code string, opts VerifyOptions) (*AuthResult, error) {
	canonical, err := s.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if !validOTPCode(code) {
		return nil, ErrInvalidCodeFormat
	}

	if _, err := s.store.Verify(ctx, canonical, code); err != nil {
		if errors.Is(err, ErrOTPNotFoundOrExpired) {
			metrics.OTPVerifications.WithLabelValues("invalid").Inc()
			s.log.Info("otp rejected", logger.Phone(canonical))
			return nil, ErrInvalidOTP
		}
		metrics.OTPVerifications.WithLabelValues("error").Inc()
		s.log.Error("verify otp failed", logger.Phone(canonical), zap.Error(err))
		return nil, err
	}
	metrics.OTPVerifications.WithLabelValues("success").Inc()

	result := &AuthResult{}
	if opts.Partner {
		result.User, result.Partner, err = s.resolver.ResolvePartnerIdentity(ctx, canonical)
	} else {
		result.User, err = s.resolver.ResolveUser(ctx, canonical)
	}
	if err != nil {
		if !errors.Is(err, ErrAmbiguousIdentity) {
			s.log.Error("identity resolution failed", logger.Phone(canonical), zap.Error(err))
		}
		return nil, err
	}

	input := auth.AccessTokenInput{UserID: result.User.ID, Phone: result.User.Phone}
	if result.Partner != nil {
		input.PartnerID = result.Partner.ID
	}
	token, err := s.tokens.GenerateAccessToken(input)
	if err != nil {
		return nil, fmt.Errorf("otp service: issue token: %w", err)
	}
	result.Token = token

	return result, nil
}
