package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrValidation marks malformed input rejected before any storage access.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidPhoneNumber indicates the phone does not match the accepted pattern.
	ErrInvalidPhoneNumber = fmt.Errorf("%w: phone number is invalid", ErrValidation)
	// ErrInvalidCodeFormat indicates the submitted code is not exactly six ASCII digits.
	ErrInvalidCodeFormat = fmt.Errorf("%w: otp must be 6 digits", ErrValidation)

	// ErrOTPNotFoundOrExpired is returned by the store when no unused, unexpired code matches.
	ErrOTPNotFoundOrExpired = errors.New("otp store: not found or expired")
	// ErrInvalidOTP is the single failure surfaced to callers for any rejected code.
	ErrInvalidOTP = errors.New("otp: code invalid or expired")

	// ErrAmbiguousIdentity signals several canonical records for a key that must be unique.
	ErrAmbiguousIdentity = errors.New("identity: ambiguous identity")
	// ErrPartnerLinkConflict signals a link that would break the user/partner phone invariant.
	ErrPartnerLinkConflict = errors.New("identity: partner link conflict")
	// ErrPartnerNotFound is returned by read-only lookups when the user has no partner profile.
	ErrPartnerNotFound = errors.New("identity: partner not found")

	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("storage failure")
	// ErrPhoneIndexMissing blocks user creation until duplicate phones are remediated.
	ErrPhoneIndexMissing = errors.New("unique user phone index missing")
)

// AmbiguousIdentityError carries the conflicting record ids for operators.
type AmbiguousIdentityError struct {
	Entity string
	Phone  string
	IDs    []string
}

func (e *AmbiguousIdentityError) Error() string {
	return fmt.Sprintf("identity: %d %s records share phone %s", len(e.IDs), e.Entity, e.Phone)
}

func (e *AmbiguousIdentityError) Unwrap() error {
	return ErrAmbiguousIdentity
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}
