package model

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies an error so that transports can map it to a response
// without looking at the message text.
type Kind int

// Constants for Kind
const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindAlreadyProcessed
	KindInvalidState
	KindForbidden
	KindValidation
	KindDependencyUnavailable
)

// String returns the canonical string representation for the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindAlreadyProcessed:
		return "already_processed"
	case KindInvalidState:
		return "invalid_state"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation_error"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the http status code that corresponds to the kind
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindAlreadyProcessed, KindInvalidState, KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type kinded interface {
	Kind() Kind
}

// KindOf returns the Kind of the passed error. Wrapped errors are unwrapped;
// errors that are not part of the taxonomy are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsKind reports whether err is of the passed Kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// NotFoundError is an error signaling that something was not found in the
// database
type NotFoundError string

// Error implements the error interface
func (e NotFoundError) Error() string {
	return string(e)
}

// Kind implements the kinded interface
func (NotFoundError) Kind() Kind { return KindNotFound }

// NotFoundErrorFmt returns a NotFoundError from the passed format string and parameters
func NotFoundErrorFmt(format string, params ...any) NotFoundError {
	return NotFoundError(fmt.Sprintf(format, params...))
}

// AlreadyExistsError is an error signaling that something already exists
type AlreadyExistsError string

// Error implements the error interface
func (e AlreadyExistsError) Error() string {
	return string(e)
}

// Kind implements the kinded interface
func (AlreadyExistsError) Kind() Kind { return KindAlreadyExists }

// AlreadyExistsErrorFmt returns an AlreadyExistsError from the passed format string and parameters
func AlreadyExistsErrorFmt(format string, params ...any) AlreadyExistsError {
	return AlreadyExistsError(fmt.Sprintf(format, params...))
}

// AlreadyProcessedError signals that a transition was attempted on something
// that has already left its initial state
type AlreadyProcessedError string

// Error implements the error interface
func (e AlreadyProcessedError) Error() string {
	return string(e)
}

// Kind implements the kinded interface
func (AlreadyProcessedError) Kind() Kind { return KindAlreadyProcessed }

// AlreadyProcessedErrorFmt returns an AlreadyProcessedError from the passed format string and parameters
func AlreadyProcessedErrorFmt(format string, params ...any) AlreadyProcessedError {
	return AlreadyProcessedError(fmt.Sprintf(format, params...))
}

// InvalidStateError signals that an operation is not legal in the current state
type InvalidStateError string

// Error implements the error interface
func (e InvalidStateError) Error() string {
	return string(e)
}

// Kind implements the kinded interface
func (InvalidStateError) Kind() Kind { return KindInvalidState }

// InvalidStateErrorFmt returns an InvalidStateError from the passed format string and parameters
func InvalidStateErrorFmt(format string, params ...any) InvalidStateError {
	return InvalidStateError(fmt.Sprintf(format, params...))
}

// ForbiddenError signals that the actor is not permitted to perform a transition
type ForbiddenError string

// Error implements the error interface
func (e ForbiddenError) Error() string {
	return string(e)
}

// Kind implements the kinded interface
func (ForbiddenError) Kind() Kind { return KindForbidden }

// ForbiddenErrorFmt returns a ForbiddenError from the passed format string and parameters
func ForbiddenErrorFmt(format string, params ...any) ForbiddenError {
	return ForbiddenError(fmt.Sprintf(format, params...))
}

// ValidationError signals invalid input
type ValidationError string

// Error implements the error interface
func (e ValidationError) Error() string {
	return string(e)
}

// Kind implements the kinded interface
func (ValidationError) Kind() Kind { return KindValidation }

// ValidationErrorFmt returns a ValidationError from the passed format string and parameters
func ValidationErrorFmt(format string, params ...any) ValidationError {
	return ValidationError(fmt.Sprintf(format, params...))
}

// MissingJustificationError is returned when a rejection comes without a justification
type MissingJustificationError string

// Error implements the error interface
func (e MissingJustificationError) Error() string {
	return string(e)
}

// Kind implements the kinded interface
func (MissingJustificationError) Kind() Kind { return KindValidation }

// DuplicateContentError is returned when a new document version carries the
// same content as the version it should supersede
type DuplicateContentError string

// Error implements the error interface
func (e DuplicateContentError) Error() string {
	return string(e)
}

// Kind implements the kinded interface
func (DuplicateContentError) Kind() Kind { return KindValidation }

// DependencyUnavailableError signals that the ledger or the storage network
// could not be reached
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

// Error implements the error interface
func (e DependencyUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Dependency)
	}
	return fmt.Sprintf("%s unavailable: %s", e.Dependency, e.Err.Error())
}

// Unwrap returns the underlying error
func (e DependencyUnavailableError) Unwrap() error {
	return e.Err
}

// Kind implements the kinded interface
func (DependencyUnavailableError) Kind() Kind { return KindDependencyUnavailable }

// KeyNotFoundError is returned when no signing material exists for an organization
type KeyNotFoundError string

// Error implements the error interface
func (e KeyNotFoundError) Error() string {
	return "no signing material for organization " + string(e)
}

// Kind implements the kinded interface
func (KeyNotFoundError) Kind() Kind { return KindNotFound }

// InvalidSignatureSetError is returned when the assembled signatures do not
// cover the required roles exactly
type InvalidSignatureSetError struct {
	Missing    []string
	Unexpected []string
}

// Error implements the error interface
func (e InvalidSignatureSetError) Error() string {
	return fmt.Sprintf("invalid signature set: missing %v, unexpected %v", e.Missing, e.Unexpected)
}

// Kind implements the kinded interface
func (InvalidSignatureSetError) Kind() Kind { return KindInvalidState }
