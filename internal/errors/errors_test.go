package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "resource not found",
			},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to process",
				Cause:   errors.New("underlying error"),
			},
			want: "failed to process: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &AppError{
		Code:    ErrCodeInternal,
		Message: "wrapped error",
		Cause:   cause,
	}

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("email", "invalid email format")
	if err.Code != ErrCodeValidation {
		t.Errorf("ValidationField().Code = %v, want %v", err.Code, ErrCodeValidation)
	}
	if err.Field != "email" {
		t.Errorf("ValidationField().Field = %v, want %v", err.Field, "email")
	}
	if err.Kind != network.KindBadRequest {
		t.Errorf("ValidationField().Kind = %v, want %v", err.Kind, network.KindBadRequest)
	}
}

func TestLocked(t *testing.T) {
	err := Locked(1500 * time.Millisecond)
	if err.Code != ErrCodeLocked {
		t.Errorf("Locked().Code = %v, want %v", err.Code, ErrCodeLocked)
	}
	if err.RetryAfter != 1500*time.Millisecond {
		t.Errorf("Locked().RetryAfter = %v", err.RetryAfter)
	}
	if want := "Too many failed login attempts. Try again in 2 seconds."; err.Message != want {
		t.Errorf("Locked().Message = %q, want %q", err.Message, want)
	}
}

func TestNetwork_DefaultsMessage(t *testing.T) {
	err := Network(network.KindOffline, "")
	if err.Message != network.KindOffline.DefaultMessage() {
		t.Errorf("Network().Message = %q", err.Message)
	}
	if !IsNetwork(err) {
		t.Errorf("IsNetwork() = false")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped error")

	if err.Code != ErrCodeInternal {
		t.Errorf("Wrap().Code = %v, want %v", err.Code, ErrCodeInternal)
	}
	if err.Message != "wrapped error" {
		t.Errorf("Wrap().Message = %v, want %v", err.Message, "wrapped error")
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Wrap().Cause = %v, want %v", err.Cause, cause)
	}
}

func TestWrap_NilError(t *testing.T) {
	err := Wrap(nil, ErrCodeInternal, "wrapped error")
	if err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestIsAuthentication(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "authentication error",
			err:  Authentication("bad credentials"),
			want: true,
		},
		{
			name: "classified 401 network error",
			err:  &network.Error{Kind: network.KindAuthError, StatusCode: 401},
			want: true,
		},
		{
			name: "other network error",
			err:  &network.Error{Kind: network.KindServerError, StatusCode: 500},
			want: false,
		},
		{
			name: "validation error",
			err:  Validation("invalid"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthentication(tt.err); got != tt.want {
				t.Errorf("IsAuthentication() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(RateLimited("/auth/login", time.Second)) {
		t.Errorf("IsRateLimited(RateLimited) = false")
	}
	if !IsRateLimited(&network.Error{Kind: network.KindRateLimited}) {
		t.Errorf("IsRateLimited(network 429) = false")
	}
	if IsRateLimited(Validation("x")) {
		t.Errorf("IsRateLimited(Validation) = true")
	}
}

func TestPredicates(t *testing.T) {
	if !IsPrecondition(Precondition("missing session")) {
		t.Errorf("IsPrecondition() = false")
	}
	if !IsLocked(Locked(time.Second)) {
		t.Errorf("IsLocked() = false")
	}
	if !IsNotFound(NotFound("x")) {
		t.Errorf("IsNotFound() = false")
	}
	if !IsInternal(Internalf("x %d", 1)) {
		t.Errorf("IsInternal() = false")
	}
	if !IsTimeout(&AppError{Code: ErrCodeTimeout}) || !IsCanceled(&AppError{Code: ErrCodeCanceled}) {
		t.Errorf("IsTimeout/IsCanceled = false")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "app error",
			err:  NotFound("not found"),
			want: ErrCodeNotFound,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: "",
		},
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetField(t *testing.T) {
	if got := GetField(ValidationField("email", "invalid")); got != "email" {
		t.Errorf("GetField() = %q", got)
	}
	if got := GetField(errors.New("standard error")); got != "" {
		t.Errorf("GetField() = %q", got)
	}
}
