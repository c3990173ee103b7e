package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
)

// ErrorCode represents a category of client error.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed input (400-class or rejected before sending).
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeAuthentication indicates bad credentials or an expired/invalid token (401-class).
	ErrCodeAuthentication ErrorCode = "authentication"
	// ErrCodeNetwork indicates a transport or backend failure; Kind carries the detail.
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodePrecondition indicates a client-side guard rejected the call before any request.
	ErrCodePrecondition ErrorCode = "precondition"
	// ErrCodeLocked indicates the local login lockout is active.
	ErrCodeLocked ErrorCode = "locked"
	// ErrCodeRateLimited indicates the endpoint is inside a rate-limit window.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeInternal indicates an unexpected client error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured client error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// StatusCode is the HTTP status that produced the error, if any.
	StatusCode int
	// Kind is the network classification, if any.
	Kind network.Kind
	// RetryAfter is how long the caller must wait (locked and rate-limited errors).
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Kind:    network.KindBadRequest,
	}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	e := Validation(message)
	e.Field = field
	return e
}

// Authentication creates a new Authentication error.
func Authentication(message string) *AppError {
	return &AppError{
		Code:       ErrCodeAuthentication,
		Message:    message,
		Kind:       network.KindAuthError,
		StatusCode: 401,
	}
}

// Precondition creates a new Precondition error.
func Precondition(message string) *AppError {
	return &AppError{
		Code:    ErrCodePrecondition,
		Message: message,
	}
}

// Preconditionf creates a new Precondition error with formatted message.
func Preconditionf(format string, args ...any) *AppError {
	return Precondition(fmt.Sprintf(format, args...))
}

// Locked creates a new Locked error that expires after remaining.
func Locked(remaining time.Duration) *AppError {
	secs := int((remaining + time.Second - 1) / time.Second)
	return &AppError{
		Code:       ErrCodeLocked,
		Message:    fmt.Sprintf("Too many failed login attempts. Try again in %d seconds.", secs),
		RetryAfter: remaining,
	}
}

// Network creates a new Network error of the given kind.
func Network(kind network.Kind, message string) *AppError {
	if message == "" {
		message = kind.DefaultMessage()
	}
	return &AppError{
		Code:    ErrCodeNetwork,
		Message: message,
		Kind:    kind,
	}
}

// RateLimited creates a new RateLimited error.
func RateLimited(endpoint string, remaining time.Duration) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimited,
		Message:    network.KindRateLimited.DefaultMessage(),
		Field:      endpoint,
		Kind:       network.KindRateLimited,
		RetryAfter: remaining,
		StatusCode: 429,
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
		Kind:    network.KindNotFound,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return Internal(fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsAuthentication checks if an error is an Authentication error, including classified
// 401 network errors that were never wrapped.
func IsAuthentication(err error) bool {
	if isCode(err, ErrCodeAuthentication) {
		return true
	}
	var netErr *network.Error
	return errors.As(err, &netErr) && netErr.Kind == network.KindAuthError
}

// IsNetwork checks if an error is a Network error.
func IsNetwork(err error) bool {
	return isCode(err, ErrCodeNetwork)
}

// IsPrecondition checks if an error is a Precondition error.
func IsPrecondition(err error) bool {
	return isCode(err, ErrCodePrecondition)
}

// IsLocked checks if an error is a Locked error.
func IsLocked(err error) bool {
	return isCode(err, ErrCodeLocked)
}

// IsRateLimited checks if an error is a RateLimited error.
func IsRateLimited(err error) bool {
	return isCode(err, ErrCodeRateLimited) || KindOf(err) == network.KindRateLimited
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// KindOf returns the network kind carried by err, or empty when none is attached.
func KindOf(err error) network.Kind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	var netErr *network.Error
	if errors.As(err, &netErr) {
		return netErr.Kind
	}
	return ""
}
