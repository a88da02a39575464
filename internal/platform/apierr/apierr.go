// Package apierr is the error envelope the session and chat services
// hand to the HTTP layer: a status for the response writer, a stable
// code for clients, and the wrapped cause for logs.
package apierr

import "fmt"

// Error carries an HTTP status and machine-readable code alongside the
// underlying cause. Handlers unwrap it via response.RespondFromError.
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
