package app

import (
	"fmt"

	"github.com/superapp/partnerauth/internal/services"
	"github.com/superapp/partnerauth/pkg/phone"
)

// StoreOptions converts OTPConfig into OTPStore options. Zero values keep the store defaults.
func (c OTPConfig) StoreOptions() []services.OTPStoreOption {
	return []services.OTPStoreOption{
		services.WithOTPTTL(c.TTL),
		services.WithOTPUsedRetention(c.UsedRetention),
		services.WithOTPLatestOnly(c.VerifyLatestOnly),
	}
}

// PhoneNormalizer compiles the configured phone pattern. Empty values fall back to the +91 defaults.
func (c OTPConfig) PhoneNormalizer() (*phone.Normalizer, error) {
	var opts []phone.Option
	if c.NationalLength > 0 {
		opts = append(opts, phone.WithNationalLength(c.NationalLength))
	}

	n, err := phone.NewNormalizer(c.PhonePattern, c.DefaultCountryCode, opts...)
	if err != nil {
		return nil, fmt.Errorf("otp config: %w", err)
	}
	return n, nil
}

// ServiceOptions converts OTPConfig into OTPService options.
func (c OTPConfig) ServiceOptions() ([]services.OTPServiceOption, error) {
	normalizer, err := c.PhoneNormalizer()
	if err != nil {
		return nil, err
	}

	return []services.OTPServiceOption{
		services.WithPhoneNormalizer(normalizer),
		services.WithDispatchTimeout(c.DispatchTimeout),
	}, nil
}
