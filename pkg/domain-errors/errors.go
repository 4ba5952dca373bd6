// Package dErrors provides coded domain errors for the observation trust core.
//
// Services return these so transports can translate them into precise,
// field-attributed responses. Infrastructure facts (store unavailable, row
// missing) use pkg/platform/sentinel and are wrapped into CodeInternal or
// CodeNotFound at the service boundary.
package dErrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure.
type Code string

const (
	// CodeValidation: malformed or out-of-range input (future timestamp,
	// missing justification, invalid coordinate).
	CodeValidation Code = "validation"
	// CodeInsufficientCredibility: actor's score is below the tier threshold.
	CodeInsufficientCredibility Code = "insufficient_credibility"
	// CodeNotEligible: actor excluded by role or relationship
	// (e.g. voting on a dispute about their own observation).
	CodeNotEligible Code = "not_eligible"
	// CodeAlreadyVoted: duplicate vote on the same dispute.
	CodeAlreadyVoted Code = "already_voted"
	// CodeNotOwner: operation reserved for the observation owner.
	CodeNotOwner Code = "not_owner"
	// CodeConflictDetected: not fatal - the submission needs a resolution choice.
	CodeConflictDetected Code = "conflict_detected"
	// CodeConcurrentModification: lost the serialization race on a state
	// transition. Safe to retry a bounded number of times.
	CodeConcurrentModification Code = "concurrent_modification"
	// CodeInvalidState: requested transition is not in the transition table.
	CodeInvalidState Code = "invalid_state"
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal"
)

// Error is a domain error with a machine-readable code, a human message and,
// where input validation is involved, the offending field.
type Error struct {
	Code    Code
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewField creates a validation-style error attributed to a specific field.
func NewField(code Code, field, message string) *Error {
	return &Error{Code: code, Message: message, Field: field}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is a readability alias for HasCode used at call sites that read like
// errors.Is.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost domain code, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
