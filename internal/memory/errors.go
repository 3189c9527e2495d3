package memory

import (
	"errors"
	"fmt"
)

// Kind classifies a memory-engine error into the taxonomy the coordinator
// boundary translates to caller-facing status codes (spec §7).
type Kind string

const (
	KindEmptyContent        Kind = "empty_content"
	KindNotFound            Kind = "not_found"
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	KindStorageFailure      Kind = "storage_failure"
	KindValidationFailure   Kind = "validation_failure"
)

// Error wraps a Kind with a message and, optionally, the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func errEmptyContent(msg string) error        { return newErr(KindEmptyContent, msg, nil) }
func errNotFound(msg string) error            { return newErr(KindNotFound, msg, nil) }
func errEmbeddingUnavailable(cause error) error {
	return newErr(KindEmbeddingUnavailable, "embedding engine not ready", cause)
}
func errStorage(msg string, cause error) error { return newErr(KindStorageFailure, msg, cause) }
func errValidation(msg string) error           { return newErr(KindValidationFailure, msg, nil) }

// KindOf returns the Kind carried by err, or "" if err does not wrap an
// *Error from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
