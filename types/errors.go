package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures for callers, logs and job state
type ErrorKind string

const (
	KindInvalidRequest         ErrorKind = "InvalidRequest"
	KindMissingCredential      ErrorKind = "MissingCredential"
	KindProviderError          ErrorKind = "ProviderError"
	KindCharacterLimitExceeded ErrorKind = "CharacterLimitExceeded"
	KindCompilationFailure     ErrorKind = "CompilationFailure"
	KindCompilationFatal       ErrorKind = "CompilationFatal"
	KindCanceled               ErrorKind = "Canceled"
	KindInternal               ErrorKind = "Internal"
)

var publicReasons = map[ErrorKind]string{
	KindInvalidRequest:         "invalid request",
	KindMissingCredential:      "narration provider is not configured",
	KindProviderError:          "narration provider unavailable",
	KindCharacterLimitExceeded: "narration provider quota exceeded",
	KindCompilationFailure:     "video compilation failed",
	KindCompilationFatal:       "could not write output",
	KindCanceled:               "canceled",
	KindInternal:               "internal error",
}

// Error is a classified failure. Op names the step that failed and Err keeps
// the underlying cause, which may contain provider payloads.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidRequest         = &Error{Kind: KindInvalidRequest}
	ErrMissingCredential      = &Error{Kind: KindMissingCredential}
	ErrProvider               = &Error{Kind: KindProviderError}
	ErrCharacterLimitExceeded = &Error{Kind: KindCharacterLimitExceeded}
	ErrCompilationFailure     = &Error{Kind: KindCompilationFailure}
	ErrCompilationFatal       = &Error{Kind: KindCompilationFatal}
	ErrCanceled               = &Error{Kind: KindCanceled}
)

// KindOf returns the classification of err. Context cancellation that was
// never wrapped is reported as Canceled; anything else unclassified is
// Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindInternal
}

// PublicMessage renders err for end users without leaking provider payloads.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	if kind == KindInvalidRequest {
		var ce *Error
		if errors.As(err, &ce) && ce.Err != nil {
			return "generation failed: " + ce.Err.Error()
		}
	}
	return "generation failed: " + publicReasons[kind]
}
