package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type testPayload struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone"`
	OTP         string `json:"otp" validate:"required,otp_code"`
	Attempts    int    `json:"attempts" validate:"gte=0"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		PhoneNumber: "+91 98765-43210",
		OTP:         "417293",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		PhoneNumber: "call me",
		OTP:         "41729",
		Attempts:    -1,
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	foundOTP := false
	for _, v := range vErrs {
		if v.Field == "otp" && v.Tag == "otp_code" {
			foundOTP = true
		}
	}

	if !foundOTP {
		t.Fatal("expected otp field to be present in validation errors")
	}
}

func TestOTPCodeRejectsNonASCIIDigits(t *testing.T) {
	type payload struct {
		OTP string `json:"otp" validate:"otp_code"`
	}

	for _, code := range []string{"١٢٣٤٥٦", "12345a", "1234567", " 12345"} {
		if err := ValidateStruct(payload{OTP: code}); err == nil {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("partner_status", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "pending", "active", "suspended":
			return true
		}
		return false
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"partner_status"`
	}

	if err := ValidateStruct(custom{Value: "active"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "deleted"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}
