package grading

import (
	"errors"
	"fmt"
)

// Error kinds returned by the engine. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("ValidationError")
	ErrNotFound          = errors.New("NotFoundError")
	ErrAlreadySubmitted  = errors.New("AlreadySubmittedError")
	ErrNotSubmitted      = errors.New("NotSubmittedError")
	ErrNotReady          = errors.New("NotReadyError")
	ErrAttemptNotAllowed = errors.New("AttemptNotAllowedError")
)

// Error is a business-rule violation carrying a stable kind and a readable message.
type Error struct {
	Kind    error
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// KindName returns the stable name of the error kind, e.g. "ValidationError".
func (e *Error) KindName() string {
	if e.Kind == nil {
		return "Error"
	}
	return e.Kind.Error()
}

// ValidationError reports malformed input.
func ValidationError(field, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown exam or question.
func NotFoundError(format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadySubmittedError reports a re-submission attempt.
func AlreadySubmittedError(examID string) *Error {
	return &Error{Kind: ErrAlreadySubmitted, Message: fmt.Sprintf("exam %s has already been submitted", examID)}
}

// NotSubmittedError reports grading or review requested before any submission.
func NotSubmittedError(examID string) *Error {
	return &Error{Kind: ErrNotSubmitted, Message: fmt.Sprintf("exam %s has no submission yet", examID)}
}

// NotReadyError reports a result requested before it is available.
func NotReadyError(examID string) *Error {
	return &Error{Kind: ErrNotReady, Message: fmt.Sprintf("exam %s is not graded yet", examID)}
}

// AttemptNotAllowedError reports that the cooldown has not elapsed.
func AttemptNotAllowedError(candidateID string) *Error {
	return &Error{Kind: ErrAttemptNotAllowed, Message: fmt.Sprintf("candidate %s must wait for the cooldown to elapse", candidateID)}
}

// KindOf returns the stable kind name for err, or "" when err is not an engine error.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.KindName()
	}
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrAlreadySubmitted, ErrNotSubmitted, ErrNotReady, ErrAttemptNotAllowed} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ""
}
