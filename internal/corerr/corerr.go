// Package corerr classifies failures into the abstract error taxonomy
// spec.md §7 describes, as sentinel Kind tags on a flat wrapped-error type
// rather than a custom exception hierarchy — matching the teacher's plain
// fmt.Errorf("...: %w", err) style throughout zCLI's Go rewrite packages.
package corerr

import (
	"errors"
	"fmt"
)

// Kind names one of spec.md §7's abstract error kinds.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAccessDenied    Kind = "access_denied"
	KindDispatch        Kind = "dispatch"
	KindNavigation      Kind = "navigation"
	KindCache           Kind = "cache"
	KindConnection      Kind = "connection"
	KindShutdownTimeout Kind = "shutdown_timeout"
)

// CoreError wraps an underlying error with a taxonomy Kind and the step/key
// context the Loop Engine had when the failure occurred.
type CoreError struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *CoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: key %q: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CoreError) Unwrap() error { return e.Err }

// New builds a CoreError of the given kind wrapping err, with optional key
// context (pass "" when there is none).
func New(kind Kind, key string, err error) *CoreError {
	return &CoreError{Kind: kind, Key: key, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, key, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Key: key, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err (or anything it wraps) is a CoreError of kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
