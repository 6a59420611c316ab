// Package shared contains the error taxonomy and events that are used across the
// query layer, the ORM and the infrastructure adapters.
package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// ErrNotFound is the kind of every "OrFail" lookup that came back empty.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidArgument is raised for unknown binding groups, missing
	// dynamic-where arguments, unknown connections and bad attribute values.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrLogic is raised when a declared relation accessor does not produce a relation.
	ErrLogic = errors.New("logic error")

	// ErrQuery marks failures raised while executing an endpoint query.
	ErrQuery = errors.New("query failed")

	// ErrUndefinedMethod is raised by explicit dynamic dispatch for unknown methods.
	ErrUndefinedMethod = errors.New("undefined method")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
)

// DomainError represents an error with the component and operation that raised it.
type DomainError struct {
	Domain  string // e.g., "query", "elegant", "database"
	Op      string // Operation that failed, e.g., "AddBinding", "GetAttribute"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// InvalidArgument is a shorthand for an ErrInvalidArgument domain error.
func InvalidArgument(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ModelNotFoundError is returned by the "OrFail" lookups.
type ModelNotFoundError struct {
	Model string
	IDs   []any
}

// Error implements the error interface.
func (e *ModelNotFoundError) Error() string {
	msg := "no query results for model [" + e.Model + "]"
	if len(e.IDs) > 0 {
		ids := make([]string, 0, len(e.IDs))
		for _, id := range e.IDs {
			ids = append(ids, fmt.Sprint(id))
		}
		msg += " " + strings.Join(ids, ", ")
	}
	return msg
}

// Is reports ErrNotFound.
func (e *ModelNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UndefinedMethodError is returned when a method name is not known to a dispatcher.
type UndefinedMethodError struct {
	Type   string
	Method string
}

// Error implements the error interface.
func (e *UndefinedMethodError) Error() string {
	return fmt.Sprintf("call to undefined method %s::%s()", e.Type, e.Method)
}

// Is reports ErrUndefinedMethod.
func (e *UndefinedMethodError) Is(target error) bool {
	return target == ErrUndefinedMethod
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument checks if the error is an invalid-argument error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsExternalService checks if the error is from the portal backend.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnauthorized)
}
