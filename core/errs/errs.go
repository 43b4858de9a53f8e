// Package errs defines the failure kinds surfaced to API callers. Every kind
// carries a human-readable reason; AttachmentRejected also names the file.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindUnauthorized       Kind = "invalid_credentials"
	KindValidation         Kind = "validation"
	KindAttachmentRejected Kind = "attachment_rejected"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
)

type Error struct {
	Kind   Kind
	Reason string
	File   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Unauthenticated(reason string) *Error {
	if reason == "" {
		reason = "authentication required"
	}
	return &Error{Kind: KindUnauthenticated, Reason: reason}
}

func Unauthorized(reason string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: reason}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func AttachmentRejected(filename string) *Error {
	return &Error{Kind: KindAttachmentRejected, Reason: "file type not allowed: " + filename, File: filename}
}

func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

func NotFound(reason string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err is
// not a classified failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
