// Package apperr defines the machine-readable error taxonomy shared by the
// lead engine components and mapped onto HTTP responses by the API layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding whether to retry or override.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
	KindInternal   Kind = "internal"
)

// Code identifies a specific failure within a kind.
type Code string

const (
	CodeAlreadyConverted       Code = "already_converted"
	CodeConversionConflict     Code = "conversion_conflict"
	CodeConcurrentModification Code = "concurrent_modification"
	CodeDuplicateQueueItem     Code = "duplicate_queue_item"
	CodeInvalidTransition      Code = "invalid_transition"
	CodeQueueItemClosed        Code = "queue_item_closed"
	CodeInvalidDocument        Code = "invalid_document"
	CodeInvalidInput           Code = "invalid_input"
	CodeNotFound               Code = "not_found"
	CodeProviderFailure        Code = "provider_failure"
	CodeInvalidWebhook         Code = "invalid_webhook"
)

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error.
func New(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(err error, kind Kind, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

// Validation returns a validation error with the invalid_input code.
func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, CodeInvalidInput, format, args...)
}

// NotFound returns a not-found error for the named entity.
func NotFound(entity string, id any) *Error {
	return Newf(KindNotFound, CodeNotFound, "%s not found: %v", entity, id)
}

// AlreadyConverted reports a conversion attempt on a converted owner.
func AlreadyConverted(ownerID int64) *Error {
	return Newf(KindConflict, CodeAlreadyConverted, "owner %d is already converted", ownerID)
}

// ConversionConflict reports a delete of an owner that holds a live CRM link.
func ConversionConflict(ownerID int64) *Error {
	return Newf(KindConflict, CodeConversionConflict, "owner %d is linked to a CRM customer; pass force to delete", ownerID)
}

// ConcurrentModification reports a lost race on a per-owner mutation.
func ConcurrentModification(ownerID int64) *Error {
	return Newf(KindConflict, CodeConcurrentModification, "owner %d is being modified concurrently", ownerID)
}

// InvalidTransition reports a lifecycle transition the state machine rejects.
func InvalidTransition(from, to string) *Error {
	return Newf(KindConflict, CodeInvalidTransition, "cannot move lead from %s to %s", from, to)
}

// KindOf returns the kind of the first classified error in err's chain, or
// KindInternal when none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first classified error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the human message of the first classified error, falling
// back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
