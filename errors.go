package msgdispatch

import (
	"errors"
	"fmt"
)

// Error represents a msgdispatch error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates a decoded payload or a request failed validation.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid wiring detected at construction time:
	// blank field names, duplicate bindings, missing dependencies.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeArgument indicates a caller passed an unsupported value,
	// such as a payload that cannot be type-tagged.
	ErrCodeArgument = "ARGUMENT_ERROR"

	// ErrCodeDecode indicates a payload could not be converted.
	ErrCodeDecode = "DECODE_ERROR"

	// ErrCodeTransport indicates the broker failed to accept a message.
	ErrCodeTransport = "TRANSPORT_ERROR"

	// ErrCodeDatabase indicates a database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeDelivery indicates an outbox delivery failed.
	ErrCodeDelivery = "DELIVERY_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsCode reports whether err is, or wraps, an *Error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return IsCode(err, ErrCodeNoData) || errors.Is(err, ErrNoData)
}

// ErrorCode returns the code of the *Error in err's chain, or "UNKNOWN".
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "UNKNOWN"
}
