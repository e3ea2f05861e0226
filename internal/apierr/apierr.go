package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error whose message is safe to show the caller.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(code, message string) *Error {
	return New(http.StatusBadRequest, code, errors.New(message))
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, "unauthorized", errors.New(message))
}

// As extracts an *Error from err. Anything else is an internal error whose
// text must not reach the caller.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}
