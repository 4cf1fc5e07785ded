package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/superapp/partnerauth/internal/models"
	"github.com/superapp/partnerauth/pkg/metrics"
	"github.com/superapp/partnerauth/pkg/obs"
)

const (
	defaultOTPTTL           = 10 * time.Minute
	defaultOTPUsedRetention = 24 * time.Hour
)

// OTPStoreOption customises the OTPStore.
type OTPStoreOption func(*OTPStore)

// WithOTPTTL overrides how long an issued code stays valid.
func WithOTPTTL(d time.Duration) OTPStoreOption {
	return func(s *OTPStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithOTPUsedRetention sets how long consumed codes are kept past expiry before the sweep removes them.
func WithOTPUsedRetention(d time.Duration) OTPStoreOption {
	return func(s *OTPStore) {
		if d >= 0 {
			s.usedRetention = d
		}
	}
}

// WithOTPLatestOnly restricts verification to the most recently issued code for a phone.
func WithOTPLatestOnly(enabled bool) OTPStoreOption {
	return func(s *OTPStore) {
		s.latestOnly = enabled
	}
}

// WithOTPClock injects a custom time source.
func WithOTPClock(clock func() time.Time) OTPStoreOption {
	return func(s *OTPStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithOTPCodeGenerator replaces the random code source.
func WithOTPCodeGenerator(gen func() (string, error)) OTPStoreOption {
	return func(s *OTPStore) {
		if gen != nil {
			s.generate = gen
		}
	}
}

// OTPStore persists one-time codes with expiry and single-use semantics.
// Consumption is a conditional update so concurrent verifies of one code have exactly one winner.
type OTPStore struct {
	db            *gorm.DB
	ttl           time.Duration
	usedRetention time.Duration
	latestOnly    bool
	now           func() time.Time
	generate      func() (string, error)
}

// NewOTPStore constructs an OTP store on the injected database handle.
func NewOTPStore(db *gorm.DB, opts ...OTPStoreOption) (*OTPStore, error) {
	if db == nil {
		return nil, errors.New("otp store: db is required")
	}

	store := &OTPStore{
		db:            db,
		ttl:           defaultOTPTTL,
		usedRetention: defaultOTPUsedRetention,
		now:           time.Now,
		generate:      generateOTPCode,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// TTL reports the validity window of issued codes.
func (s *OTPStore) TTL() time.Duration {
	return s.ttl
}

// Issue generates and stores a fresh code for phone. Earlier unused codes stay verifiable.
func (s *OTPStore) Issue(ctx context.Context, phone string) (string, *models.OTPRecord, error) {
	ctx, span := obs.Tracer().Start(ctx, "otp.issue")
	defer span.End()

	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil, ErrInvalidPhoneNumber
	}

	code, err := s.generate()
	if err != nil {
		return "", nil, fmt.Errorf("otp store: %w", err)
	}

	now := s.now().UTC()
	record := models.OTPRecord{
		Phone:     phone,
		CodeHash:  otpCodeHash(phone, code),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create otp record")
		return "", nil, storageError("otp store: create record", err)
	}

	metrics.OTPIssued.Inc()
	span.SetAttributes(attribute.String("otp.record_id", record.ID))
	return code, &record, nil
}

// Verify consumes the code for phone. It fails with ErrOTPNotFoundOrExpired when no
// unused, unexpired record matches, including when a concurrent caller consumed it first.
func (s *OTPStore) Verify(ctx context.Context, phone, code string) (*models.OTPRecord, error) {
	ctx, span := obs.Tracer().Start(ctx, "otp.verify")
	defer span.End()

	phone = strings.TrimSpace(phone)
	if phone == "" || !validOTPCode(code) {
		return nil, ErrOTPNotFoundOrExpired
	}

	now := s.now().UTC()
	db := s.db.WithContext(ctx)
	hash := otpCodeHash(phone, code)

	var candidates []models.OTPRecord
	if s.latestOnly {
		var latest models.OTPRecord
		err := db.Where("phone = ?", phone).
			Order("issued_at DESC").
			Order("created_at DESC").
			Take(&latest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOTPNotFoundOrExpired
		}
		if err != nil {
			span.RecordError(err)
			return nil, storageError("otp store: find latest", err)
		}
		if latest.CodeHash == hash && !latest.IsUsed && !latest.Expired(now) {
			candidates = append(candidates, latest)
		}
	} else {
		if err := db.Where("phone = ? AND code_hash = ? AND is_used = ? AND expires_at > ?", phone, hash, false, now).
			Order("issued_at DESC").
			Find(&candidates).Error; err != nil {
			span.RecordError(err)
			return nil, storageError("otp store: find candidates", err)
		}
	}

	for i := range candidates {
		record := candidates[i]
		res := db.Model(&models.OTPRecord{}).
			Where("id = ? AND is_used = ? AND expires_at > ?", record.ID, false, now).
			Updates(map[string]any{"is_used": true, "used_at": now})
		if res.Error != nil {
			span.RecordError(res.Error)
			return nil, storageError("otp store: consume record", res.Error)
		}
		if res.RowsAffected == 1 {
			record.IsUsed = true
			record.UsedAt = &now
			span.SetAttributes(attribute.String("otp.record_id", record.ID))
			return &record, nil
		}
	}

	return nil, ErrOTPNotFoundOrExpired
}

// SweepExpired deletes expired unused codes and consumed codes past the audit retention.
// Only rows no verify could still match are touched, so it is safe to run concurrently.
func (s *OTPStore) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	usedCutoff := now.Add(-s.usedRetention)

	res := s.db.WithContext(ctx).
		Where("(is_used = ? AND expires_at < ?) OR (is_used = ? AND expires_at < ?)", false, now, true, usedCutoff).
		Delete(&models.OTPRecord{})
	if res.Error != nil {
		return 0, storageError("otp store: sweep", res.Error)
	}

	metrics.OTPSwept.Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}
