// Package ctxerr defines the error taxonomy shared by every ctxkeeper
// component.
//
// Four kinds exist:
//   - NotFound: unknown key, theme, flow id, or a missing index
//   - Malformed: a definition document failed to parse
//   - Unavailable: an optional capability is absent or failing
//   - Cyclic: the requested flows contain a dependency cycle
//
// NotFound and Malformed are terminal for the request that hit them.
// Unavailable is meant to be caught at the call site and turned into a
// fallback. Cyclic is terminal for ordering only.
package ctxerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindMalformed   Kind = "malformed"
	KindUnavailable Kind = "unavailable"
	KindCyclic      Kind = "cyclic"
)

// Error carries a Kind plus the subject (key, path, flow ids) it concerns.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Subject, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports an unknown key, theme, flow id, or missing index.
func NotFound(subject string, err error) error {
	return &Error{Kind: KindNotFound, Subject: subject, Err: err}
}

// Malformed reports a document that failed to parse.
func Malformed(subject string, err error) error {
	return &Error{Kind: KindMalformed, Subject: subject, Err: err}
}

// Unavailable reports an optional capability that is absent or failing.
func Unavailable(subject string, err error) error {
	return &Error{Kind: KindUnavailable, Subject: subject, Err: err}
}

// Cyclic reports a dependency cycle among the given subject (flow ids).
func Cyclic(subject string, err error) error {
	return &Error{Kind: KindCyclic, Subject: subject, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
