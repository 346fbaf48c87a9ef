package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Validation
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired  ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidRecipient ErrorCode = "INVALID_RECIPIENT"
	ErrCodeNoRecipients     ErrorCode = "NO_RECIPIENTS"

	// Resource
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Passcodes. CODE_NOT_FOUND and CODE_EXPIRED stay internal; clients only
	// ever see INVALID_CODE.
	ErrCodeInvalidCode  ErrorCode = "INVALID_CODE"
	ErrCodeCodeNotFound ErrorCode = "CODE_NOT_FOUND"
	ErrCodeCodeExpired  ErrorCode = "CODE_EXPIRED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Delivery
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeDelivery      ErrorCode = "DELIVERY_ERROR"

	// Internal
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func InvalidRecipient(address string) *AppError {
	return New(ErrCodeInvalidRecipient, fmt.Sprintf("Invalid recipient: %q", address))
}

func NoRecipients() *AppError {
	return New(ErrCodeNoRecipients, "No recipients to send to")
}

// InvalidCode is the only passcode failure clients ever see.
func InvalidCode() *AppError {
	return New(ErrCodeInvalidCode, "Invalid or expired code")
}

func CodeNotFound() *AppError {
	return New(ErrCodeCodeNotFound, "Code not found")
}

func CodeExpired() *AppError {
	return New(ErrCodeCodeExpired, "Code has expired")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Configuration(message string, cause error) *AppError {
	return Wrap(ErrCodeConfiguration, message, cause)
}

func Delivery(cause error) *AppError {
	return Wrap(ErrCodeDelivery, "Failed to deliver email", cause)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func StorageUnavailable(cause error) *AppError {
	return Wrap(ErrCodeStorageUnavailable, "Storage unavailable", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}
