// Package errs defines the tagged error kinds shared across the core so
// that callers can branch on failure category instead of matching strings.
package errs

import "github.com/pkg/errors"

// Kind tags an error with the category described in spec section 7.
type Kind string

const (
	// KindTransient covers subprocess crashes, stderr error lines, and
	// transient file I/O. Logged and surfaced operationally; never retried
	// automatically.
	KindTransient Kind = "transient_external_failure"

	// KindProtocol covers unknown commands, unauthorized commands, and
	// malformed payloads from a client. The offending message is dropped,
	// not the connection.
	KindProtocol Kind = "protocol_violation"

	// KindIntegrity covers double votes, re-raising an already-raised hand,
	// and closing an already-closed poll. Treated as a no-op, never
	// reported to the client as an error.
	KindIntegrity Kind = "integrity_noop"

	// KindDuplicate covers double postPublish and a donePublish with no
	// matching start. Ignored with a warning.
	KindDuplicate Kind = "race_or_duplicate_event"

	// KindFatal covers a supervisor that failed to spawn or an output
	// directory that isn't writable. Surfaced at first use; the affected
	// stream is marked failed but the server keeps running.
	KindFatal Kind = "fatal_core_bug"
)

// Error is a tagged-kind error. The zero value is not meaningful; build
// one with New or Wrap.
type Error struct {
	Kind Kind
	Op   string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// New builds a tagged error from a message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, err: errors.New(msg)}
}

// Wrap tags an existing error with a kind and the operation that produced
// it. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, err: errors.Wrap(err, op)}
}

// Is reports whether err is a tagged Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
