// pattern: Functional Core

// Package failure classifies domain errors into the coarse status hints the
// HTTP layer turns into response codes.
package failure

import (
	"errors"
	"net/http"
)

// Hint is a transport-neutral classification of a failed operation.
type Hint string

const (
	BadInput Hint = "bad-input"
	NotFound Hint = "not-found"
	Conflict Hint = "conflict"
	Internal Hint = "internal"
)

// Hinter is implemented by errors that know how they should be reported.
type Hinter interface {
	Hint() Hint
}

// HintOf returns the hint of the first error in err's chain that carries one.
// Errors without a hint are internal.
func HintOf(err error) Hint {
	if err == nil {
		return ""
	}
	var h Hinter
	if errors.As(err, &h) {
		return h.Hint()
	}
	return Internal
}

// HTTPStatus maps a hint to the status code the web layer responds with.
func (h Hint) HTTPStatus() int {
	switch h {
	case BadInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a plain message paired with a hint, for failures raised outside
// the orchestration packages (request decoding, path validation).
type Error struct {
	hint Hint
	msg  string
}

// New creates an Error with the given hint and message.
func New(hint Hint, msg string) *Error {
	return &Error{hint: hint, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Hint implements Hinter.
func (e *Error) Hint() Hint { return e.hint }
