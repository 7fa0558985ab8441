package game

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure for callers and transports.
type Kind int

const (
	// KindInternal marks a broken invariant: something the engine itself
	// guaranteed earlier is missing. Logged loudly, never auto-recovered.
	KindInternal Kind = iota
	// KindConfig marks a lobby configuration hole discovered while using it.
	KindConfig
	// KindBadRequest marks a business-rule rejection of a client command.
	KindBadRequest
	// KindNotFound marks a missing lobby or player.
	KindNotFound
	// KindConflict marks an operation against the wrong lifecycle state
	// (game already started, game not started).
	KindConflict
	// KindPersistence marks a failed durable write; the round transition
	// that caused it did not commit.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

// Error is the engine's failure type: a kind plus human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapErr attaches a kind to an underlying error.
func WrapErr(kind Kind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the kind from err, defaulting to KindInternal for
// errors that did not originate in the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
