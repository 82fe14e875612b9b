package app

import (
	"errors"
	"fmt"
)

// Kind classifies a DomainError for the caller.
type Kind string

const (
	KindForbidden         Kind = "FORBIDDEN"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindValidation        Kind = "VALIDATION_ERROR"
)

type DomainError struct {
	Kind    Kind
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(kind Kind, code, message string, details any) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func forbidden(message string) *DomainError {
	return domainError(KindForbidden, "FORBIDDEN", message, nil)
}

// notFound deliberately says nothing about whether the resource exists
// in another workspace.
func notFound(resource string) *DomainError {
	return domainError(KindNotFound, "NOT_FOUND", resource+" not found", nil)
}

func conflict(code, message string) *DomainError {
	return domainError(KindConflict, code, message, nil)
}

func invalidTransition(message string) *DomainError {
	return domainError(KindInvalidTransition, "INVALID_TRANSITION", message, nil)
}

func validation(message string) *DomainError {
	return domainError(KindValidation, "VALIDATION_ERROR", message, nil)
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Kind == kind
}
