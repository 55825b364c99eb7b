package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorType string

const (
	TimeoutError       ErrorType = "TIMEOUT"
	NetworkError       ErrorType = "NETWORK_ERROR"
	UpstreamError      ErrorType = "UPSTREAM_ERROR"
	MalformedError     ErrorType = "MALFORMED_RESPONSE"
	ValidationError    ErrorType = "VALIDATION_ERROR"
	AuthorizationError ErrorType = "AUTHORIZATION_ERROR"
	UnavailableError   ErrorType = "BACKEND_UNAVAILABLE"
	InternalError      ErrorType = "INTERNAL_ERROR"
)

// AppError represents a typed application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewTimeoutError(msg string, err error) *AppError {
	return &AppError{Type: TimeoutError, Message: msg, Err: err}
}

func NewNetworkError(msg string, err error) *AppError {
	return &AppError{Type: NetworkError, Message: msg, Err: err}
}

// NewUpstreamError wraps a well-formed non-2xx backend response.
func NewUpstreamError(status int, msg string) *AppError {
	if msg == "" {
		msg = fmt.Sprintf("backend returned HTTP %d", status)
	}
	return &AppError{Type: UpstreamError, Message: msg, StatusCode: status}
}

func NewMalformedError(msg string, err error) *AppError {
	return &AppError{Type: MalformedError, Message: msg, Err: err}
}

func NewValidationError(msg string, details map[string]interface{}) *AppError {
	return &AppError{Type: ValidationError, Message: msg, Details: details}
}

func NewAuthorizationError(msg string) *AppError {
	return &AppError{Type: AuthorizationError, Message: msg}
}

func NewUnavailableError(msg string) *AppError {
	return &AppError{Type: UnavailableError, Message: msg}
}

func NewInternalError(msg string, err error) *AppError {
	return &AppError{Type: InternalError, Message: msg, Err: err}
}

// TypeOf reports the error type, classifying untyped transport errors.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TimeoutError
		}
		return NetworkError
	}
	return InternalError
}

// IsNetworkLevel reports whether err means no response was obtained.
func IsNetworkLevel(err error) bool {
	switch TypeOf(err) {
	case TimeoutError, NetworkError:
		return true
	default:
		return false
	}
}

// Is reports whether err is an AppError of the given type.
func Is(err error, t ErrorType) bool {
	return TypeOf(err) == t
}
