package wolfram

import "fmt"

// ErrorCode classifies client-side query failures. Errors reported by the
// service itself are carried in the QueryResult, not as Go errors.
type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorTransport    ErrorCode = "TRANSPORT_ERROR"
	ErrorStatus       ErrorCode = "HTTP_STATUS"
	ErrorDecode       ErrorCode = "DECODE_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("wolfram: %s", e.Reason)
	}
	return fmt.Sprintf("wolfram: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
