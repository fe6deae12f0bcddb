// Package apierr defines the error taxonomy from spec §7: ValidationError,
// NotPermitted, NotFound, Conflict, Transient, Fatal. Each is a typed error
// an errors.Is check can match against its sentinel; internal/httpapi maps
// these to HTTP status codes in one place rather than per-handler.
package apierr

import "errors"

// Sentinels usable with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotPermitted = errors.New("not permitted")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTransient    = errors.New("transient error")
	ErrFatal        = errors.New("fatal error")
)

// apiError wraps a message with a sentinel kind.
type apiError struct {
	kind error
	msg  string
}

func (e *apiError) Error() string { return e.msg }
func (e *apiError) Unwrap() error { return e.kind }

// Validation builds a ValidationError: malformed input, never retried.
func Validation(msg string) error { return &apiError{kind: ErrValidation, msg: msg} }

// NotPermitted builds a NotPermitted error: an authorization predicate failed.
func NotPermitted(msg string) error { return &apiError{kind: ErrNotPermitted, msg: msg} }

// NotFound builds a NotFound error: the referenced entity is missing.
func NotFound(msg string) error { return &apiError{kind: ErrNotFound, msg: msg} }

// Conflict builds a Conflict error: a uniqueness or state-machine violation.
func Conflict(msg string) error { return &apiError{kind: ErrConflict, msg: msg} }

// Transient builds a Transient error: retried by background loops, never
// surfaced to external callers except as a generic 5xx.
func Transient(msg string) error { return &apiError{kind: ErrTransient, msg: msg} }

// Fatal builds a Fatal error: the agent exits non-zero; the server refuses
// to start.
func Fatal(msg string) error { return &apiError{kind: ErrFatal, msg: msg} }

// Is lets errors.Is(err, ErrNotFound) etc. match values built above.
func (e *apiError) Is(target error) bool { return e.kind == target }
