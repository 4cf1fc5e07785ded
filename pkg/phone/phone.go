// Package phone canonicalises phone numbers to E.164 so stored and incoming
// values compare byte for byte.
package phone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultPattern accepts Indian mobile numbers.
	DefaultPattern = `^\+91[6-9]\d{9}$`
	// DefaultCountryCode is prepended to bare national numbers.
	DefaultCountryCode = "91"
	// DefaultNationalLength is the subscriber number length for the default market.
	DefaultNationalLength = 10
)

// ErrInvalidPhone is returned when a number does not match the accepted pattern after normalisation.
var ErrInvalidPhone = errors.New("phone: invalid phone number")

// Normalizer rewrites raw user input to the canonical +<cc><number> form and validates it.
type Normalizer struct {
	pattern        *regexp.Regexp
	countryCode    string
	nationalLength int
}

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithNationalLength overrides the expected subscriber number length.
func WithNationalLength(n int) Option {
	return func(nr *Normalizer) {
		if n > 0 {
			nr.nationalLength = n
		}
	}
}

// NewNormalizer compiles the pattern. Empty values fall back to the defaults.
func NewNormalizer(pattern, countryCode string, opts ...Option) (*Normalizer, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("phone: compile pattern: %w", err)
	}

	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	for _, r := range countryCode {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("phone: country code %q must be numeric", countryCode)
		}
	}

	n := &Normalizer{
		pattern:        re,
		countryCode:    countryCode,
		nationalLength: DefaultNationalLength,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// MustNormalizer is NewNormalizer for static configuration.
func MustNormalizer(pattern, countryCode string, opts ...Option) *Normalizer {
	n, err := NewNormalizer(pattern, countryCode, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize canonicalises raw and validates the result against the pattern.
func (n *Normalizer) Normalize(raw string) (string, error) {
	canonical := n.Canonical(raw)
	if canonical == "" || !n.pattern.MatchString(canonical) {
		return "", ErrInvalidPhone
	}
	return canonical, nil
}

// Valid reports whether raw normalises to an accepted number.
func (n *Normalizer) Valid(raw string) bool {
	_, err := n.Normalize(raw)
	return err == nil
}

// Canonical rewrites raw without validating it. Separators are dropped, a
// leading 00 becomes +, and bare national numbers get the default country code.
// Returns "" when raw contains anything other than digits and separators.
func (n *Normalizer) Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	plus := false
	var digits strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
			plus = true
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return ""
		}
	}

	d := digits.String()
	if d == "" {
		return ""
	}
	if plus {
		return "+" + d
	}
	if strings.HasPrefix(d, "00") {
		return "+" + d[2:]
	}

	national := strings.TrimLeft(d, "0")
	switch {
	case len(national) == n.nationalLength:
		return "+" + n.countryCode + national
	case len(d) == len(n.countryCode)+n.nationalLength && strings.HasPrefix(d, n.countryCode):
		return "+" + d
	default:
		return "+" + national
	}
}
