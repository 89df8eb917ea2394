package usecase

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a use-case failure; the handler maps it to a status.
type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorNotFound     ErrorCode = "NOT_FOUND"
	ErrorRateLimited  ErrorCode = "RATE_LIMITED"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// Error is returned by every operation in this package. Reason is a stable
// snake_case tag such as "unknown_source" or "chat_rate_limited".
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
	default:
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "" when there
// is none.
func CodeOf(err error) ErrorCode {
	var usecaseErr *Error
	if errors.As(err, &usecaseErr) && usecaseErr != nil {
		return usecaseErr.Code
	}
	return ""
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
