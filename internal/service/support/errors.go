package support

import "fmt"

type ErrorCode string

const (
	ErrorCodeValidation        ErrorCode = "validation_error"
	ErrorCodeNotFound          ErrorCode = "not_found"
	ErrorCodeInvalidTransition ErrorCode = "invalid_transition"
	ErrorCodeBackendFailure    ErrorCode = "backend_unavailable"
	ErrorCodeConflict          ErrorCode = "conflict"
	ErrorCodeUnauthorized      ErrorCode = "unauthorized"
	ErrorCodeInternal          ErrorCode = "internal_error"
)

// Error is the only error type that crosses the service boundary. Raw
// store and backend errors are wrapped so transport code can map codes to
// status codes without inspecting error strings.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
