package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Base error types
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidInput    = errors.New("invalid input")
	ErrQuotaExceeded   = errors.New("no credits remaining")
	ErrProviderFailure = errors.New("payment provider failure")
	ErrStoreWrite      = errors.New("store write failed")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypePaymentProvider ErrorType = "payment_provider"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeQuotaExceeded   ErrorType = "quota_exceeded"
	ErrorTypeStoreWrite      ErrorType = "store_write"
	ErrorTypeInternal        ErrorType = "internal"
)

// AppError is a structured error carried from the billing core to the HTTP
// boundary, where it is mapped to a status code.
type AppError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "create_checkout_session", "apply_event")
	Message   string // Client-safe message; falls back to the wrapped error
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, msg)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrUnauthorized:
		return e.Type == ErrorTypeAuth
	case ErrInvalidInput:
		return e.Type == ErrorTypeValidation
	case ErrQuotaExceeded:
		return e.Type == ErrorTypeQuotaExceeded
	case ErrProviderFailure:
		return e.Type == ErrorTypePaymentProvider
	case ErrStoreWrite:
		return e.Type == ErrorTypeStoreWrite
	}

	return errors.Is(e.Err, target)
}

// New creates a new AppError
func New(errorType ErrorType, op string, err error) *AppError {
	return &AppError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithMessage sets the client-facing message.
func (e *AppError) WithMessage(msg string) *AppError {
	e.Message = msg
	return e
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypePaymentProvider, ErrorTypeStoreWrite, ErrorTypeInternal:
		return true
	default:
		return false
	}
}

// Validation reports malformed or unknown client input.
func Validation(op, msg string) error {
	return New(ErrorTypeValidation, op, ErrInvalidInput).WithMessage(msg)
}

// Authentication reports a failed credential or signature check.
func Authentication(op string, err error) error {
	return New(ErrorTypeAuth, op, err).WithMessage("authentication failed")
}

// PaymentProvider wraps an upstream payment provider failure.
func PaymentProvider(op string, err error) error {
	return New(ErrorTypePaymentProvider, op, err)
}

// NotFound reports a missing record.
func NotFound(op, msg string) error {
	return New(ErrorTypeNotFound, op, ErrNotFound).WithMessage(msg)
}

// QuotaExceeded reports a Usage Gate denial.
func QuotaExceeded(op string) error {
	return New(ErrorTypeQuotaExceeded, op, ErrQuotaExceeded).
		WithMessage("No FAQ credits remaining. Please upgrade your subscription.")
}

// StoreWrite wraps a durable write failure.
func StoreWrite(op string, err error) error {
	return New(ErrorTypeStoreWrite, op, err)
}

// TypeOf returns the category of err, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsRetryableError checks if the caller may safely retry the operation
func IsRetryableError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// StatusCode maps err to the HTTP status the API answers with.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch TypeOf(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuth:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeQuotaExceeded:
		return http.StatusForbidden
	case ErrorTypePaymentProvider:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client for err.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeQuotaExceeded, ErrorTypeAuth:
			if appErr.Message != "" {
				return appErr.Message
			}
		case ErrorTypePaymentProvider:
			return "Payment provider unavailable. Please try again."
		}
	}
	return "Something went wrong"
}
