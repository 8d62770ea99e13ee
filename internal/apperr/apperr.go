// Package apperr defines the error taxonomy of spec §7: every failure the
// core surfaces to a client or to the HTTP boundary is one of these eight
// kinds, each with a fixed recovery policy enforced by the session layer.
package apperr

import "fmt"

// Kind is one of the canonical error kinds from §7.
type Kind string

const (
	Unauthorized Kind = "unauthorized"
	NotFound     Kind = "not_found"
	Forbidden    Kind = "forbidden"
	Conflict     Kind = "conflict"
	Validation   Kind = "validation"
	RateLimited  Kind = "rate_limited"
	Upstream     Kind = "upstream"
	Internal     Kind = "internal"
)

// Error is the canonical error value carried across component boundaries
// and mapped 1:1 onto the outbound Error event or an HTTP status by the
// transport layer.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying error, preserving it
// for errors.Is/As and logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the Kind of err, defaulting to Internal for anything
// that isn't an *Error — an un-typed error reaching the session boundary
// is itself an invariant violation per §7.
func KindOf(err error) Kind {
	var ae *Error
	if as(err, &ae) {
		return ae.Kind
	}
	return Internal
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Recoverable reports whether the session should stay open after
// reporting this error (everything except unauthorized/internal, per the
// recovery policy in §7).
func Recoverable(kind Kind) bool {
	return kind != Unauthorized && kind != Internal
}

var (
	ErrSelfFriendship = New(Conflict, "cannot send a friend request to yourself")
)
