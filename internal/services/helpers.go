package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const otpCodeDigits = 6

var otpCodeSpace = big.NewInt(1_000_000)

// generateOTPCode returns a uniformly random, zero padded six digit code.
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpCodeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpCodeDigits, n.Int64()), nil
}

// otpCodeHash binds the code to its phone so equal codes for different phones never share a hash.
func otpCodeHash(phone, code string) string {
	digest := sha256.Sum256([]byte(phone + ":" + code))
	return hex.EncodeToString(digest[:])
}

// validOTPCode reports whether code is exactly six ASCII digits.
func validOTPCode(code string) bool {
	if len(code) != otpCodeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
