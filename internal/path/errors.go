package path

import (
	"errors"
	"fmt"
)

// Code is the numeric error reported to the guidance loop.
type Code int

const (
	CodeNone             Code = 0
	CodeLengthInvalid    Code = 1
	CodeAllocationFailed Code = 2
	CodeMalformedPoint   Code = 3
	CodeTransport        Code = 4
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeLengthInvalid:
		return "length invalid"
	case CodeAllocationFailed:
		return "allocation failed"
	case CodeMalformedPoint:
		return "malformed point"
	case CodeTransport:
		return "transport"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// Error is a request failure. It is terminal for the request that caused it.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := "path: " + e.Code.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Msg == "" && t.Err == nil
}

var (
	ErrLengthInvalid    = &Error{Code: CodeLengthInvalid}
	ErrAllocationFailed = &Error{Code: CodeAllocationFailed}
	ErrMalformedPoint   = &Error{Code: CodeMalformedPoint}
	ErrTransport        = &Error{Code: CodeTransport}

	ErrBusy         = errors.New("path: request already in flight")
	ErrNotAwaiting  = errors.New("path: no request in flight")
	ErrInvalidPoint = errors.New("path: request endpoint is invalid")
)

// ErrorCode maps err to its numeric code. nil is CodeNone; errors that did
// not come from the protocol map to CodeTransport.
func ErrorCode(err error) Code {
	if err == nil {
		return CodeNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeTransport
}

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}
