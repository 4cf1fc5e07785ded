package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := ErrServiceUnavailable.WithInternal(stdErrors.New("connection refused"))

	if err.Error() != "Service unavailable, try again later: connection refused" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestCopiesStillMatchPredeclaredError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ErrInvalidOTP.WithInternal(stdErrors.New("no row")))

	if !stdErrors.Is(wrapped, ErrInvalidOTP) {
		t.Fatal("expected copy to match ErrInvalidOTP")
	}
	if stdErrors.Is(wrapped, ErrAmbiguousIdentity) {
		t.Fatal("expected copy not to match a different code")
	}
}

func TestFromError(t *testing.T) {
	if out := FromError(ErrNotFound); out != ErrNotFound {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	out := FromError(stdErrors.New("raw"))
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewValidation(t *testing.T) {
	err := NewValidation("phone number is invalid")
	if err.Code != ErrValidation.Code {
		t.Fatalf("expected %s, got %s", ErrValidation.Code, err.Code)
	}
	if err.Message != "phone number is invalid" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
	if ErrValidation.Message != "Invalid request" {
		t.Fatal("expected predeclared error to remain unchanged")
	}
}
