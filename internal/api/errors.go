package api

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks errors caused by the request itself. Handlers answer them with 400.
var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg   string
	cause error
}

func (e invalidRequestError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e invalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func (e invalidRequestError) Unwrap() error { return e.cause }

func invalidRequestf(format string, args ...any) error {
	return invalidRequestError{msg: fmt.Sprintf(format, args...)}
}

// wrapInvalid marks err as the request's fault.
func wrapInvalid(err error, msg string) error {
	return invalidRequestError{msg: msg, cause: err}
}
